package api

import (
	"errors"
	"io"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gatherly/chatkit/internal/models"
	"github.com/gatherly/chatkit/internal/service"
)

type openConversationReq struct {
	PeerID string `json:"peer_id"`
}

func (s *Server) openConversation(c *fiber.Ctx) error {
	var req openConversationReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	userID := c.Locals("user_id").(string)

	conv, err := s.svc.OpenConversation(c.Context(), userID, req.PeerID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(conv)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	convs, err := s.svc.ListConversations(c.Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	convID := c.Params("conversation_id")
	msgs, err := s.svc.ListMessages(c.Context(), convID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

type sendMessageReq struct {
	ReceiverID string             `json:"receiver_id"`
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type"`
	Media      *models.Media      `json:"media"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	userID := c.Locals("user_id").(string)

	msg, err := s.svc.SendMessage(c.Context(), service.SendInput{
		ConversationID: c.Params("conversation_id"),
		SenderID:       userID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           req.Type,
		Media:          req.Media,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if err := s.svc.MarkConversationRead(c.Context(), c.Params("conversation_id"), userID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	online, err := s.svc.Presence(c.Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "online": online})
}

func (s *Server) uploadMedia(c *fiber.Ctx) error {
	if s.uploader == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "media storage not configured")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}

	key := uuid.NewString() + path.Ext(fh.Filename)
	url, err := s.uploader.Upload(c.Context(), key, fh.Header.Get("Content-Type"), data)
	if err != nil {
		s.log.Errorw("media upload failed", "file", fh.Filename, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "upload failed")
	}
	return c.JSON(fiber.Map{
		"file_url":  url,
		"file_name": fh.Filename,
		"file_size": fh.Size,
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSameUser),
		errors.Is(err, service.ErrEmptyParticipant),
		errors.Is(err, service.ErrEmptyContent):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotMember):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

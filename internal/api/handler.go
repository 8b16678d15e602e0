package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/linguaverse/messaging-service/internal/apperr"
)

type editMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	m, err := s.pipeline.Edit(c.Context(), c.Params("message_id"), c.Locals("user_id").(string), req.Content)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(m)
}

// deleteMessage handles both delete modes. scope=me hides the message for the
// caller only; scope=everyone hard-deletes it and is restricted to the sender.
func (s *Server) deleteMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	msgID := c.Params("message_id")

	switch c.Query("scope", "me") {
	case "me":
		if err := s.pipeline.DeleteForMe(c.Context(), msgID, userID); err != nil {
			return respondErr(c, err)
		}
	case "everyone":
		if err := s.pipeline.DeleteForEveryone(c.Context(), msgID, userID); err != nil {
			return respondErr(c, err)
		}
	default:
		return respondErr(c, apperr.Validation("scope must be me or everyone"))
	}
	return c.JSON(fiber.Map{"deleted": true})
}

func (s *Server) pinMessage(c *fiber.Ctx) error {
	m, err := s.pipeline.Pin(c.Context(), c.Params("message_id"), c.Locals("user_id").(string))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(m)
}

func (s *Server) unpinMessage(c *fiber.Ctx) error {
	m, err := s.pipeline.Unpin(c.Context(), c.Params("message_id"), c.Locals("user_id").(string))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(m)
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

func (s *Server) addReaction(c *fiber.Ctx) error {
	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	m, err := s.pipeline.React(c.Context(), c.Params("message_id"), c.Locals("user_id").(string), req.Reaction)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(m)
}

func (s *Server) removeReaction(c *fiber.Ctx) error {
	m, err := s.pipeline.RemoveReaction(c.Context(), c.Params("message_id"), c.Locals("user_id").(string))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(m)
}

type forwardRequest struct {
	RecipientIDs []string `json:"recipient_ids"`
	GroupIDs     []string `json:"group_ids"`
}

func (s *Server) forwardMessage(c *fiber.Ctx) error {
	var req forwardRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	res, err := s.pipeline.Forward(c.Context(), c.Params("message_id"), c.Locals("user_id").(string), req.RecipientIDs, req.GroupIDs)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(res)
}

func (s *Server) unreadCount(c *fiber.Ctx) error {
	n, err := s.pipeline.UnreadCount(c.Context(), c.Params("conversation_id"), c.Locals("user_id").(string))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

type createGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
	Description  string   `json:"description"`
	IsPrivate    bool     `json:"is_private"`
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	conv, err := s.resolver.CreateGroup(c.Context(), c.Locals("user_id").(string), req.Name, req.Participants, req.Description, req.IsPrivate)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

type participantsRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (s *Server) addParticipants(c *fiber.Ctx) error {
	var req participantsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	if err := s.resolver.AddParticipants(c.Context(), c.Params("conversation_id"), c.Locals("user_id").(string), req.UserIDs); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"added": len(req.UserIDs)})
}

func (s *Server) removeParticipants(c *fiber.Ctx) error {
	var req participantsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	if err := s.resolver.RemoveParticipants(c.Context(), c.Params("conversation_id"), c.Locals("user_id").(string), req.UserIDs); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"removed": len(req.UserIDs)})
}

type renameGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameGroup(c *fiber.Ctx) error {
	var req renameGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("malformed request body"))
	}
	if err := s.resolver.RenameGroup(c.Context(), c.Params("conversation_id"), c.Locals("user_id").(string), req.Name); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"renamed": true})
}

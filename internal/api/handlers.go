package api

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cyp0633/calrecur/calendar"
	"github.com/cyp0633/calrecur/ics"
	"github.com/cyp0633/calrecur/recurrence"
)

func (s *Server) getOccurrences(c *fiber.Ctx) error {
	from, err := dateQuery(c, "from", time.Time{})
	if err != nil {
		return err
	}
	to, err := dateQuery(c, "to", time.Time{})
	if err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return fiber.NewError(fiber.StatusBadRequest, "from and to are required")
	}

	occs, err := s.cal.Expand(from, to)
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "occurrences": occs})
}

func (s *Server) getToday(c *fiber.Ctx) error {
	occs, err := s.cal.Today()
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"date":        s.cal.CurrentDate().Format(recurrence.DateLayout),
		"occurrences": occs,
	})
}

func (s *Server) getNext(c *fiber.Ctx) error {
	days := c.QueryInt("days", s.horizon)
	occs, err := s.cal.NextDays(days)
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "days": days, "occurrences": occs})
}

func (s *Server) listEvents(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "events": s.cal.Definitions()})
}

func (s *Server) getEvent(c *fiber.Ctx) error {
	d, err := s.cal.Get(c.Params("id"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "event": d})
}

func (s *Server) createEvent(c *fiber.Ctx) error {
	var req definitionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	def, err := req.definition()
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	created, err := s.cal.Create(c.Context(), def)
	if err != nil && !calendar.IsPersistenceFailure(err) {
		return fail(err)
	}
	c.Status(fiber.StatusCreated)
	return s.committed(c, err, fiber.Map{"event": created})
}

func (s *Server) editEvent(c *fiber.Ctx) error {
	scope, target, err := scopeQuery(c)
	if err != nil {
		return err
	}
	patch, err := decodePatch(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if patch.IsEmpty() {
		return fiber.NewError(fiber.StatusBadRequest, "patch changes nothing")
	}

	d, err := s.cal.Edit(c.Context(), scope, c.Params("id"), target, patch)
	return s.committed(c, err, fiber.Map{"event": d, "scope": scope.String()})
}

func (s *Server) deleteEvent(c *fiber.Ctx) error {
	scope, target, err := scopeQuery(c)
	if err != nil {
		return err
	}
	err = s.cal.Delete(c.Context(), scope, c.Params("id"), target)
	return s.committed(c, err, fiber.Map{"scope": scope.String()})
}

func (s *Server) getUpcoming(c *fiber.Ctx) error {
	dates, err := s.cal.UpcomingDates(c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return fail(err)
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(recurrence.DateLayout)
	}
	return c.JSON(fiber.Map{"success": true, "dates": out})
}

func (s *Server) postFlush(c *fiber.Ctx) error {
	if err := s.cal.Flush(c.Context()); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "persisted": true})
}

func (s *Server) getICS(c *fiber.Ctx) error {
	var buf bytes.Buffer
	err := ics.Encode(&buf, s.cal.Definitions(), ics.Options{Name: s.name, Now: time.Now()})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", s.name+".ics"))
	return c.Send(buf.Bytes())
}

func dateQuery(c *fiber.Ctx, key string, def time.Time) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	d, err := recurrence.ParseDate(raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s date %q", key, raw))
	}
	return d, nil
}

func scopeQuery(c *fiber.Ctx) (calendar.Scope, time.Time, error) {
	scope, err := calendar.ParseScope(c.Query("scope"))
	if err != nil {
		return 0, time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	target, err := dateQuery(c, "date", time.Time{})
	if err != nil {
		return 0, time.Time{}, err
	}
	return scope, target, nil
}

package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid_snowflake_id")
	}
	return parsed, nil
}

// pageParams reads `limit` (or `page_size`) and `page_token`.
func pageParams(c *gin.Context) (int, string, error) {
	raw := c.Query("limit")
	if strings.TrimSpace(raw) == "" {
		raw = c.Query("page_size")
	}
	size, err := parseOptionalInt(raw)
	if err != nil || (size != nil && *size < 0) {
		return 0, "", newValidationError("limit", "invalid_limit", "limit must be a positive integer")
	}
	pageSize := 0
	if size != nil {
		pageSize = *size
	}
	return pageSize, strings.TrimSpace(c.Query("page_token")), nil
}

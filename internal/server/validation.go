package server

import (
	"strings"
	"sync"

	"traitors-table/internal/store"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	maxChannelLength = 64
	maxPathLength    = 512
	maxSeat          = 25
)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("storepath", func(fl validator.FieldLevel) bool {
			return validStatePath(fl.Field().String())
		})
		_ = engine.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
			return validChannel(fl.Field().String())
		})
	})
}

func validStatePath(path string) bool {
	if len(path) > maxPathLength {
		return false
	}
	return store.Clean(path) != "" && store.ValidPath(path)
}

func validChannel(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > maxChannelLength {
		return false
	}
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			continue
		}
		return false
	}
	return true
}

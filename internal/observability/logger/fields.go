package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Sistema

// Layer: controller | service | repository | engine.
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Component(v string) zap.Field { return zap.String("component", v) }
func Err(err error) zap.Field { return zap.Error(err) }

// Dominio

func ClientID(v string) zap.Field { return zap.String("client_id", v) }
func UserID(v string) zap.Field { return zap.String("user_id", v) }
func AppSlug(v string) zap.Field { return zap.String("application", v) }

// Scope identifica el scope cuya mapping se está evaluando.
func Scope(v string) zap.Field { return zap.String("scope", v) }

// Policy identifica la policy de un binding.
func Policy(v string) zap.Field { return zap.String("policy", v) }

// State es el estado del orquestador de autorización.
func State(v string) zap.Field { return zap.String("state", v) }

// Genéricos

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Strings(key string, v []string) zap.Field { return zap.Strings(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func ID(v string) zap.Field { return zap.String("id", v) }

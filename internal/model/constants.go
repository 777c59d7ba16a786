package model

import "time"

const ReconcilerTickTimeout = 30 * time.Second

const HeaderContentType = "Content-Type"
const HeaderWebhookSecret = "X-Webhook-Secret"

type ContextKey string

const KeyContextLogger ContextKey = "logger"
const KeyContextMemberID ContextKey = "member_id"

const KeyLoggerError = "error"

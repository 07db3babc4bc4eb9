package handler

import (
	"connectmatch/internal/app/chat"
	"connectmatch/internal/configs"
)

// AppDeps bundles everything the HTTP layer needs to serve requests.
type AppDeps struct {
	Config *configs.AppConfig
	Chat   *chat.Deps
}

package handler

import (
	"livechat/internal/app/chat"
	"livechat/internal/app/docstore"
	"livechat/internal/app/experience"
	"livechat/internal/app/live"
	"livechat/internal/app/storage"
	"livechat/internal/app/user"
	"livechat/internal/configs"
)

// AppDeps bundles the services the HTTP layer dispatches to.
type AppDeps struct {
	Config     *configs.AppConfig
	Store      docstore.Store
	Resolver   *user.Resolver
	Directory  *user.Directory
	Experience *experience.Engine
	Composer   *chat.Composer
	Contacts   *chat.ContactBook
	Hub        *live.Hub

	// StorageService is nil when object storage is not configured.
	StorageService storage.StorageService
}

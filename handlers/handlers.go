package handlers

import (
	"clinic_flow_app_go/config"
	"clinic_flow_app_go/services"
)

var (
	appConfig *config.Config
	notifier  *services.Notifier
)

// Init wires the shared collaborators used across handlers
func Init(cfg *config.Config, n *services.Notifier) {
	appConfig = cfg
	notifier = n
}

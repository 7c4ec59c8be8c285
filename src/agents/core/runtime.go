package core

import (
	"net/http"

	"go.uber.org/zap"
)

// RuntimeDeps captures shared resources that adapters can opt into.
type RuntimeDeps struct {
	HTTP   *http.Client
	Logger *zap.Logger
}

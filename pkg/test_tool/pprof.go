package testtool

import (
	"net/http"
	_ "net/http/pprof" // registers the pprof endpoints

	"marketplace_chat_service/pkg/config"
	"marketplace_chat_service/pkg/logger"
)

// StartPprof starts the pprof server on :6060 outside production.
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server on :6060")
		if err := http.ListenAndServe(":6060", nil); err != nil {
			logger.Log.Infof("pprof server failed: ", err)
		}
	}()
}

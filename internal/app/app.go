// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the Genkit
// runtime, the database pool, the vector index and the answer engine.
// Setup builds the components in dependency order; Close releases them.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/cliniq/internal/config"
	"github.com/openclinic/cliniq/internal/engine"
	"github.com/openclinic/cliniq/internal/intent"
	"github.com/openclinic/cliniq/internal/log"
	"github.com/openclinic/cliniq/internal/vecstore"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Store    *vecstore.Store
	Engine   *engine.Engine

	// Normalized knowledge base loaded at startup.
	Intents []intent.Intent

	// Lifecycle management
	dbCleanup   func()
	otelCleanup func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

package main

import (
	"net/http"

	"ejrbom/mapping"
	"ejrbom/reconcile"
)

func SetupRoutes(mux *http.ServeMux, svc *reconcile.Service) {
	st := svc.Store()

	mux.HandleFunc("/api/mapping/results", mapping.GetResultsHandler(svc))
	mux.HandleFunc("/api/mapping/run", mapping.RunHandler(svc))
	mux.HandleFunc("/api/mapping/fixed", mapping.SetFixedHandler(svc))
	mux.HandleFunc("/api/mapping/select_all", mapping.SelectAllHandler(svc))
	mux.HandleFunc("/api/mapping/commit", mapping.CommitFixedHandler(svc))
	mux.HandleFunc("/api/mapping/stats", mapping.GetStatsHandler(svc))
	mux.HandleFunc("/api/mapping/near_miss", mapping.GetNearMissHandler(svc))
	mux.HandleFunc("/api/mapping/connections", mapping.TestConnectionsHandler(svc))

	mux.HandleFunc("/api/mapping/manual", mapping.GetManualMappingsHandler(st))
	mux.HandleFunc("/api/mapping/manual/save", mapping.SaveManualMappingHandler(st))
	mux.HandleFunc("/api/mapping/manual/delete", mapping.DeleteManualMappingHandler(st))
	mux.HandleFunc("/api/mapping/extraction_conditions", mapping.GetExtractionConditionsHandler(st))

	mux.HandleFunc("/api/config/get", GetConfigHandler())
	mux.HandleFunc("/api/config/save", SaveConfigHandler())
}

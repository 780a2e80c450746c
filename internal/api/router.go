package api

import (
	"database/sql"
	"net/http"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/reservation"
	"github.com/flokr/lendhub/internal/restriction"
	"github.com/flokr/lendhub/internal/scheduler"
	"github.com/flokr/lendhub/internal/transfer"
)

// Deps bundles the collaborators the API needs.
type Deps struct {
	DB           *sql.DB
	JWTSecret    string
	Notifier     notify.Notifier
	Reservations *reservation.Service
	Transfers    *transfer.Service
	Restrictions *restriction.Service
	Runner       *scheduler.Runner
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: deps.DB, JWTSecret: deps.JWTSecret}
	usersHandler := &UsersHandler{DB: deps.DB}
	hubsHandler := &HubsHandler{DB: deps.DB}
	itemsHandler := &ItemsHandler{DB: deps.DB, Notifier: deps.Notifier}
	reservationsHandler := &ReservationsHandler{DB: deps.DB, Service: deps.Reservations}
	transfersHandler := &TransfersHandler{DB: deps.DB, Service: deps.Transfers}
	restrictionsHandler := &RestrictionsHandler{Service: deps.Restrictions}
	jobsHandler := &JobsHandler{Runner: deps.Runner}

	authMW := AuthMiddleware(deps.JWTSecret)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireSteward := RequireRole(model.RoleSteward)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Users: create (admin), get (self or steward+).
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(http.HandlerFunc(usersHandler.Get)))

	// Restrictions: status (self or steward+), lift (steward+).
	mux.Handle("GET /api/users/{id}/restriction", authMW(http.HandlerFunc(restrictionsHandler.Status)))
	mux.Handle("POST /api/users/{id}/restriction/lift", authMW(requireSteward(http.HandlerFunc(restrictionsHandler.Lift))))

	// Hubs: read (all roles), write (admin).
	mux.Handle("GET /api/hubs", authMW(http.HandlerFunc(hubsHandler.List)))
	mux.Handle("GET /api/hubs/{id}", authMW(http.HandlerFunc(hubsHandler.Get)))
	mux.Handle("POST /api/hubs", authMW(requireAdmin(http.HandlerFunc(hubsHandler.Create))))
	mux.Handle("POST /api/hubs/{id}/stewards", authMW(requireAdmin(http.HandlerFunc(hubsHandler.AddSteward))))

	// Items: read (all roles), write (steward+), incidents (all roles).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("GET /api/items/flagged", authMW(requireSteward(http.HandlerFunc(itemsHandler.ListFlagged))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("POST /api/items", authMW(requireSteward(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("POST /api/items/{id}/incidents", authMW(http.HandlerFunc(itemsHandler.ReportIncident)))
	mux.Handle("POST /api/items/{id}/unflag", authMW(requireSteward(http.HandlerFunc(itemsHandler.Unflag))))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireSteward(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))

	// Reservations: lifecycle (owner or steward+, enforced in the service).
	mux.Handle("POST /api/reservations", authMW(http.HandlerFunc(reservationsHandler.Create)))
	mux.Handle("GET /api/reservations", authMW(http.HandlerFunc(reservationsHandler.List)))
	mux.Handle("GET /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Get)))
	mux.Handle("POST /api/reservations/{id}/pickup", authMW(http.HandlerFunc(reservationsHandler.Pickup)))
	mux.Handle("POST /api/reservations/{id}/return", authMW(http.HandlerFunc(reservationsHandler.Return)))
	mux.Handle("POST /api/reservations/{id}/cancel", authMW(http.HandlerFunc(reservationsHandler.Cancel)))
	mux.Handle("POST /api/reservations/{id}/extension", authMW(http.HandlerFunc(reservationsHandler.RequestExtension)))
	mux.Handle("POST /api/reservations/{id}/extension/approve", authMW(requireSteward(http.HandlerFunc(reservationsHandler.ApproveExtension))))

	// Transfers (steward+).
	mux.Handle("POST /api/transfers", authMW(requireSteward(http.HandlerFunc(transfersHandler.Initiate))))
	mux.Handle("GET /api/transfers", authMW(requireSteward(http.HandlerFunc(transfersHandler.List))))
	mux.Handle("GET /api/transfers/{id}", authMW(requireSteward(http.HandlerFunc(transfersHandler.Get))))
	mux.Handle("POST /api/transfers/{id}/approve", authMW(requireSteward(http.HandlerFunc(transfersHandler.Approve))))
	mux.Handle("POST /api/transfers/{id}/complete", authMW(requireSteward(http.HandlerFunc(transfersHandler.Complete))))
	mux.Handle("POST /api/transfers/{id}/cancel", authMW(requireSteward(http.HandlerFunc(transfersHandler.Cancel))))

	// Jobs (admin).
	mux.Handle("GET /api/jobs", authMW(requireAdmin(http.HandlerFunc(jobsHandler.List))))
	mux.Handle("POST /api/jobs/{name}/run", authMW(requireAdmin(http.HandlerFunc(jobsHandler.Run))))

	return mux
}

package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"p9e.in/mfgops/handlers"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// =====================================================
	// Public Routes (no authentication)
	// =====================================================
	r.HandleFunc("/register", handlers.Register).Methods("POST")
	r.HandleFunc("/login", handlers.Login).Methods("POST")
	r.HandleFunc("/forgot-password", handlers.ForgotPassword).Methods("POST")
	r.HandleFunc("/reset-password", handlers.ResetPassword).Methods("POST")

	// =====================================================
	// Protected API Routes (require JWT authentication)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.JWTMiddleware)

	api.HandleFunc("/profile", handlers.Profile).Methods("GET")

	registerChecksheetRoutes(api)
	registerPlanRoutes(api)

	// =====================================================
	// Admin Routes (require admin role)
	// =====================================================
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminOnly)
	registerAdminRoutes(admin)

	return r
}

// registerChecksheetRoutes wires the checksheet template and submission
// surface. Authoring is restricted to admins and supervisors; submitting
// and reading is open to any authenticated user.
func registerChecksheetRoutes(api *mux.Router) {
	cs := api.PathPrefix("/checksheet").Subrouter()

	authoring := cs.NewRoute().Subrouter()
	authoring.Use(middleware.RequireRole([]string{models.RoleAdmin, models.RoleSupervisor}))

	// templates
	authoring.HandleFunc("/templates", handlers.PublishChecksheetTemplate).Methods("POST")
	cs.HandleFunc("/templates", handlers.ListChecksheetTemplates).Methods("GET")
	cs.HandleFunc("/templates/{id}", handlers.GetChecksheetTemplate).Methods("GET")
	cs.HandleFunc("/templates/{id}/full", handlers.GetChecksheetTemplateFull).Methods("GET")
	cs.HandleFunc("/templates/{id}/versions", handlers.GetChecksheetTemplateVersions).Methods("GET")
	authoring.HandleFunc("/templates/{id}", handlers.UpdateChecksheetTemplate).Methods("PUT")
	authoring.HandleFunc("/templates/{id}", handlers.DeleteChecksheetTemplate).Methods("DELETE")

	// submissions; the bare /submissions form takes template_id in the body
	cs.HandleFunc("/submissions", handlers.SubmitChecksheet).Methods("POST")
	cs.HandleFunc("/templates/{id}/submissions", handlers.SubmitChecksheet).Methods("POST")
	cs.HandleFunc("/templates/{id}/submissions", handlers.GetAllTemplateSubmissions).Methods("GET")
	cs.HandleFunc("/templates/{id}/submissions/all", handlers.GetAllTemplateSubmissions).Methods("GET")
	cs.HandleFunc("/templates/{id}/export", handlers.ExportTemplateSubmissions).Methods("GET")

	// images
	cs.HandleFunc("/templates/{id}/images", handlers.GetTemplateImages).Methods("GET")
	cs.HandleFunc("/templates/{id}/images/{imageId}", handlers.GetTemplateImage).Methods("GET")

	// folders
	authoring.HandleFunc("/folders", handlers.CreateChecksheetFolder).Methods("POST")
	cs.HandleFunc("/folders", handlers.ListChecksheetFolders).Methods("GET")
	authoring.HandleFunc("/folders/{id}", handlers.UpdateChecksheetFolder).Methods("PUT")
	authoring.HandleFunc("/folders/{id}", handlers.DeleteChecksheetFolder).Methods("DELETE")
	authoring.HandleFunc("/folders/{id}/templates", handlers.MoveTemplatesToFolder).Methods("PUT")
	authoring.HandleFunc("/folders/{id}/move", handlers.MoveTemplatesToFolder).Methods("POST")
}

// registerPlanRoutes wires production planning.
func registerPlanRoutes(api *mux.Router) {
	plans := api.PathPrefix("/plans").Subrouter()

	write := plans.NewRoute().Subrouter()
	write.Use(middleware.RequireRole([]string{models.RoleAdmin, models.RoleSupervisor}))

	write.HandleFunc("", handlers.CreateProductionPlan).Methods("POST")
	plans.HandleFunc("", handlers.ListProductionPlans).Methods("GET")
	plans.HandleFunc("/{id}", handlers.GetProductionPlan).Methods("GET")
	write.HandleFunc("/{id}", handlers.UpdateProductionPlan).Methods("PUT")
	write.HandleFunc("/{id}/status", handlers.UpdateProductionPlanStatus).Methods("POST")
	write.HandleFunc("/{id}", handlers.DeleteProductionPlan).Methods("DELETE")
}

// registerAdminRoutes wires user management and SMTP settings.
func registerAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/users", handlers.GetAllUsers).Methods("GET")
	admin.HandleFunc("/users/{id}", handlers.GetUserByID).Methods("GET")
	admin.HandleFunc("/users/{id}/role", handlers.UpdateUserRole).Methods("PUT")
	admin.HandleFunc("/users/{id}/active", handlers.SetUserActive).Methods("PUT")

	admin.HandleFunc("/smtp", handlers.GetSMTPSettings).Methods("GET")
	admin.HandleFunc("/smtp", handlers.SaveSMTPSettings).Methods("PUT")
	admin.HandleFunc("/smtp/test", handlers.TestSMTPSettings).Methods("POST")
}

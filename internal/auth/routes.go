// internal/auth/routes.go
// Declarative route table for the auth API

package auth

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/marketplace-auth/internal/common/validation"
)

// Route binds a method and path to its validation chain, optional role gate
// and handler
type Route struct {
	Method  string
	Path    string
	Rules   validation.Chain
	Roles   []Role
	Handler http.HandlerFunc
}

var check = validation.Check

// Routes returns the auth route table
func (h *Handler) Routes() []Route {
	return []Route{
		{
			Method: http.MethodPost,
			Path:   "/login",
			Rules: validation.Chain{
				check("username").NotEmpty().WithMessage("username is required"),
				check("password").NotEmpty().WithMessage("password is required"),
			},
			Handler: h.Login,
		},
		{
			Method: http.MethodPost,
			Path:   "/signup",
			Rules: validation.Chain{
				check("username").MinLength(UsernameMinLength).WithMessage("minimum username length is 3"),
				check("username").MaxLength(UsernameMaxLength).WithMessage("maximum username length is 100"),
				check("password").MinLength(6).WithMessage("minimum password length is 6"),
				check("email").NotEmpty().WithMessage("email is required"),
				check("email").NormalizeEmail().IsEmail().WithMessage("email is invalid"),
				check("role").IsIn(string(RoleSeller), string(RoleBuyer)).WithMessage("Role must be either Seller or Buyer"),
			},
			Handler: h.Signup,
		},
		{
			Method: http.MethodPost,
			Path:   "/refresh-token",
			Rules: validation.Chain{
				check("token").NotEmpty().WithMessage("token is required"),
			},
			Handler: h.RefreshToken,
		},
		{
			Method: http.MethodPost,
			Path:   "/verify-token",
			Rules: validation.Chain{
				check("token").NotEmpty().WithMessage("token is required"),
			},
			Handler: h.VerifyToken,
		},
		{
			Method: http.MethodPost,
			Path:   "/send-otp",
			Rules: validation.Chain{
				check("email").NotEmpty().WithMessage("email cant be empty"),
				check("email").NormalizeEmail().IsEmail().WithMessage("invalid email"),
			},
			Handler: h.ResendOTP,
		},
		{
			Method: http.MethodPatch,
			Path:   "/verify-otp",
			Rules: validation.Chain{
				check("otp").NotEmpty().WithMessage("otp is required"),
				check("email").NotEmpty().WithMessage("email is required"),
				check("email").NormalizeEmail().IsEmail().WithMessage("email is invalid"),
			},
			Handler: h.VerifyOTP,
		},
		{
			Method: http.MethodPatch,
			Path:   "/forgot-password",
			Rules: validation.Chain{
				check("email").NotEmpty().WithMessage("email is required"),
				check("email").NormalizeEmail().IsEmail().WithMessage("email is invalid"),
			},
			Handler: h.ForgotPassword,
		},
		{
			Method: http.MethodPatch,
			Path:   "/change-password",
			Rules: validation.Chain{
				check("old_password").NotEmpty().WithMessage("old_password is required"),
				// declared twice, so a missing value is reported twice
				check("old_password").NotEmpty().WithMessage("old_password is required"),
				check("new_password").MinLength(6).WithMessage("minimum password length is 6"),
			},
			Roles:   []Role{RoleSeller, RoleAdmin, RoleBuyer},
			Handler: h.ChangePassword,
		},
		{
			Method: http.MethodPatch,
			Path:   "/reset-password",
			Rules: validation.Chain{
				check("new_password").MinLength(6).WithMessage("minimum password length is 6"),
			},
			Handler: h.ResetPassword,
		},
		{
			Method:  http.MethodPatch,
			Path:    "/promote/{id}",
			Roles:   []Role{RoleAdmin},
			Handler: h.Promote,
		},
		{
			Method:  http.MethodPatch,
			Path:    "/demote/{id}",
			Roles:   []Role{RoleAdmin},
			Handler: h.Demote,
		},
	}
}

// RegisterRoutes mounts routes on router. A request passes the role gate,
// then the validation chain, then reaches the handler.
func RegisterRoutes(router *mux.Router, routes []Route, mw *Middleware) {
	for _, route := range routes {
		var handler http.Handler = route.Handler

		if len(route.Rules) > 0 {
			handler = validation.Validate(route.Rules, rejectionRecorder(route.Path))(handler)
		}

		if len(route.Roles) > 0 {
			handler = mw.Authorize(route.Path, route.Roles...)(handler)
		}

		router.Handle(route.Path, handler).Methods(route.Method)
	}
}

func rejectionRecorder(path string) validation.RejectFunc {
	return func(r *http.Request, errs []validation.FieldError) {
		validationRejectionsTotal.WithLabelValues(path).Inc()
		log.Printf("Validation failed for %s %s: %d errors", r.Method, path, len(errs))
	}
}

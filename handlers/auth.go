// handlers/auth.go
package handlers

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
	"p9e.in/mfgops/pkg/kvcache"
	"p9e.in/mfgops/pkg/mailer"
)

// VerificationCodes holds the short-lived password-reset codes. Wired in
// main to a memory store, or Redis when the service runs multi-instance.
var VerificationCodes kvcache.Store

const resetCodeTTL = 10 * time.Minute

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}
	// hash pw
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "error hashing password", http.StatusInternalServerError)
		return
	}
	role := req.Role
	if role == "" || role == models.RoleAdmin {
		// admin accounts only come from the admin surface
		role = models.RoleOperator
	}
	u := models.User{
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := config.DB.Create(&u).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "account already exists", http.StatusConflict)
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone"`
	Role  string    `json:"role"`
}

type loginResp struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var u models.User
	if err := config.DB.Where("email = ?", strings.ToLower(req.Email)).First(&u).Error; err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !u.IsActive {
		http.Error(w, "account is deactivated", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := middleware.GenerateToken(u.ID.String(), u.Role, u.Name, u.Email)
	if err != nil {
		http.Error(w, "couldn't create token", http.StatusInternalServerError)
		return
	}
	out := loginResp{
		Token: token,
		User: userPayload{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
			Phone: u.Phone,
			Role:  u.Role,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// Profile returns the authenticated user's record.
func Profile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := config.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	resp := userPayload{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
		Role:  user.Role,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// generateVerificationCode creates a numeric code of the given length.
func generateVerificationCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	for i := range code {
		code[i] = digits[code[i]%10]
	}
	return string(code), nil
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

// ForgotPassword emails a verification code valid for ten minutes. The
// response is 200 whether or not the account exists.
func ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	var u models.User
	if err := config.DB.Where("email = ?", email).First(&u).Error; err == nil && u.IsActive {
		code, err := generateVerificationCode(6)
		if err == nil {
			if err := VerificationCodes.Put(r.Context(), "reset:"+email, code, resetCodeTTL); err != nil {
				log.Printf("Failed to store reset code for %s: %v", email, err)
			} else if cfg, cfgErr := activeSMTPConfig(); cfgErr == nil {
				body := fmt.Sprintf("Hello,\n\nYour password reset code is: %s\nThis code will expire in 10 minutes.\n", code)
				if err := mailer.Send(cfg, email, "Password Reset Code", body); err != nil {
					log.Printf("Failed to send reset mail to %s: %v", email, err)
				}
			} else {
				log.Printf("No SMTP configuration, reset code for %s not sent", email)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "if the account exists, a verification code has been sent",
	})
}

type resetPasswordReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ResetPassword exchanges a valid verification code for a new password.
// Codes are single use.
func ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Code == "" || req.NewPassword == "" {
		http.Error(w, "email, code and new_password are required", http.StatusBadRequest)
		return
	}

	stored, ok, err := VerificationCodes.Get(r.Context(), "reset:"+email)
	if err != nil {
		http.Error(w, "verification store unavailable", http.StatusInternalServerError)
		return
	}
	if !ok || stored != req.Code {
		http.Error(w, "invalid or expired verification code", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "error hashing password", http.StatusInternalServerError)
		return
	}
	res := config.DB.Model(&models.User{}).
		Where("email = ?", email).
		Update("password_hash", string(hash))
	if res.Error != nil {
		http.Error(w, "db error: "+res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}

	VerificationCodes.Delete(r.Context(), "reset:"+email)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "password updated"})
}

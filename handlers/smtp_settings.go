// handlers/smtp_settings.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/models"
	"p9e.in/mfgops/pkg/mailer"
)

var errNoSMTPConfig = errors.New("no active smtp configuration")

func activeSMTPConfig() (*models.SMTPConfig, error) {
	var cfg models.SMTPConfig
	err := config.DB.Where("is_active = ?", true).Order("updated_at DESC").First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNoSMTPConfig
		}
		return nil, err
	}
	return &cfg, nil
}

// GetSMTPSettings returns the active configuration. The password never
// leaves the server; only whether one is set.
func GetSMTPSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := activeSMTPConfig()
	if err != nil {
		if errors.Is(err, errNoSMTPConfig) {
			http.Error(w, "no SMTP configuration", http.StatusNotFound)
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":           cfg.ID,
		"host":         cfg.Host,
		"port":         cfg.Port,
		"username":     cfg.Username,
		"from_address": cfg.FromAddress,
		"use_tls":      cfg.UseTLS,
		"has_password": cfg.Password != "",
		"updated_at":   cfg.UpdatedAt,
	})
}

type smtpSettingsReq struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address"`
	UseTLS      bool   `json:"use_tls"`
}

// SaveSMTPSettings replaces the active configuration. Previous rows are
// deactivated rather than deleted so a bad save can be rolled back by hand.
func SaveSMTPSettings(w http.ResponseWriter, r *http.Request) {
	var req smtpSettingsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Port <= 0 || req.FromAddress == "" {
		http.Error(w, "host, port and from_address are required", http.StatusBadRequest)
		return
	}

	cfg := models.SMTPConfig{
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		Password:    req.Password,
		FromAddress: req.FromAddress,
		UseTLS:      req.UseTLS,
		IsActive:    true,
	}
	// keep the previous password when the client omits it
	if cfg.Password == "" {
		if prev, err := activeSMTPConfig(); err == nil {
			cfg.Password = prev.Password
		}
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SMTPConfig{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&cfg).Error
	})
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": cfg.ID, "message": "settings saved"})
}

type smtpTestReq struct {
	To string `json:"to"`
}

// TestSMTPSettings sends a probe message with the active configuration
// and reports the transport error verbatim so admins can diagnose it.
func TestSMTPSettings(w http.ResponseWriter, r *http.Request) {
	var req smtpTestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.To == "" {
		http.Error(w, "to is required", http.StatusBadRequest)
		return
	}

	cfg, err := activeSMTPConfig()
	if err != nil {
		if errors.Is(err, errNoSMTPConfig) {
			http.Error(w, "no SMTP configuration", http.StatusNotFound)
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := mailer.Send(cfg, req.To, "SMTP Test", "This is a test message from the manufacturing operations backend."); err != nil {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}

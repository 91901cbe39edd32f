package server

import "github.com/verdantlabs/greencoach/internal/trainer/core"

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type StartSessionRequest struct {
	Industry     string `json:"industry"`
	Jurisdiction string `json:"jurisdiction"`
	Difficulty   string `json:"difficulty"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type SessionStatusResponse struct {
	SessionID  string               `json:"session_id"`
	Status     core.RunStatus       `json:"status"`
	StageIndex int                  `json:"stage_index"`
	Sources    int                  `json:"sources_collected"`
	Error      string               `json:"error,omitempty"`
	Report     *core.TrainingReport `json:"report,omitempty"`
}

type SearchReportsResponse struct {
	Hits []SearchHit `json:"hits"`
}

type SearchHit struct {
	ReportID string  `json:"report_id"`
	Score    float64 `json:"score"`
}

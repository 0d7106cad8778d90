package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sdsim/internal/microservices/http-api/dto"
)

// OperatorLogin trades operator credentials for a token at the admin API.
func OperatorLogin(adminURL, username, password string, timeout time.Duration) (*dto.AuthResponse, error) {
	body, err := json.Marshal(dto.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: timeout}
	url := strings.TrimRight(adminURL, "/") + "/auth/login"
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var auth dto.AuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	return &auth, nil
}

// StepSim asks the admin API for one synchronous tick. token may be empty
// when the API runs without auth.
func StepSim(adminURL, token string, timeout time.Duration) (*dto.StepResponse, error) {
	url := strings.TrimRight(adminURL, "/") + "/sim/step"
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := &http.Client{Timeout: timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("step failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var step dto.StepResponse
	if err := json.Unmarshal(respBody, &step); err != nil {
		return nil, fmt.Errorf("failed to parse step response: %w", err)
	}
	return &step, nil
}

package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"modtrack/models"
)

// FCMService pushes floor alerts to supervisor devices over the FCM HTTP v1
// API. It doubles as the sync engine's SyncNotifier.
type FCMService struct {
	projectID   string
	credentials *jwt.Config
	db          *sql.DB
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

// ServiceAccountCredentials is the Firebase service account JSON shape.
type ServiceAccountCredentials struct {
	Type                string `json:"type"`
	ProjectID           string `json:"project_id"`
	PrivateKeyID        string `json:"private_key_id"`
	PrivateKey          string `json:"private_key"`
	ClientEmail         string `json:"client_email"`
	ClientID            string `json:"client_id"`
	AuthURI             string `json:"auth_uri"`
	TokenURI            string `json:"token_uri"`
	AuthProviderCertURL string `json:"auth_provider_x509_cert_url"`
	ClientCertURL       string `json:"client_x509_cert_url"`
}

// NewFCMService loads the service account from credentialsPath and builds the
// OAuth2 token source.
func NewFCMService(credentialsPath string, db *sql.DB) (*FCMService, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("credentials path is required")
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file: %v", err)
	}

	var creds ServiceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("error parsing credentials: %v", err)
	}

	privateKey := strings.ReplaceAll(creds.PrivateKey, "\\n", "\n")
	config := &jwt.Config{
		Email:      creds.ClientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{"https://www.googleapis.com/auth/firebase.messaging"},
		TokenURL:   creds.TokenURI,
	}

	return &FCMService{
		projectID:   creds.ProjectID,
		credentials: config,
		db:          db,
		httpClient:  &http.Client{},
		tokenSource: config.TokenSource(context.Background()),
	}, nil
}

// SendNotification pushes one notification to a single device token.
func (f *FCMService) SendNotification(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("FCM token cannot be empty")
	}

	oauthToken, err := f.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("error getting OAuth token: %v", err)
	}

	if data == nil {
		data = map[string]string{}
	}
	message := map[string]interface{}{
		"message": map[string]interface{}{
			"token": token,
			"notification": map[string]string{
				"title": title,
				"body":  body,
			},
			"data": data,
			"android": map[string]interface{}{
				"priority": "high",
				"notification": map[string]interface{}{
					"sound":      "default",
					"channel_id": "default",
				},
			},
			"apns": map[string]interface{}{
				"headers": map[string]string{
					"apns-priority": "10",
				},
				"payload": map[string]interface{}{
					"aps": map[string]interface{}{
						"alert": map[string]string{
							"title": title,
							"body":  body,
						},
						"sound": "default",
					},
				},
			},
		},
	}

	endpoint := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", f.projectID)
	return f.sendHTTPv1Request(ctx, endpoint, oauthToken.AccessToken, message)
}

// SendMulticastNotification sends the same notification to multiple tokens,
// logging failures rather than aborting on the first one.
func (f *FCMService) SendMulticastNotification(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	failureCount := 0
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		if err := f.SendNotification(ctx, token, title, body, data); err != nil {
			failureCount++
			log.Printf("Failed to send to token %s: %v", token[:min(20, len(token))], err)
		}
	}
	if failureCount > 0 {
		log.Printf("Failed to send %d notifications out of %d", failureCount, len(tokens))
	}
	return nil
}

// supervisorTokens fetches the device tokens of active supervisors at a
// factory. factoryID 0 means all factories.
func (f *FCMService) supervisorTokens(factoryID int) ([]string, error) {
	query := `SELECT fcm_token FROM users
		WHERE role = 'supervisor' AND fcm_token IS NOT NULL AND fcm_token != ''`
	args := []interface{}{}
	if factoryID != 0 {
		query += ` AND factory_id = $1`
		args = append(args, factoryID)
	}

	rows, err := f.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error fetching supervisor FCM tokens: %v", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			log.Printf("Error scanning FCM token: %v", err)
			continue
		}
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens, rows.Err()
}

// NotifyQCFailure alerts the factory's supervisors that a module failed its
// inspection and also stores a notification row for the web UI.
func (f *FCMService) NotifyQCFailure(ctx context.Context, module *models.Module, station *models.StationTemplate, rec *models.QCRecord) error {
	tokens, err := f.supervisorTokens(module.FactoryID)
	if err != nil {
		return err
	}

	title := "QC failure on the line"
	body := fmt.Sprintf("Module %s failed inspection at %s", module.SerialNumber, station.Name)
	data := map[string]string{
		"module_id":    strconv.Itoa(module.ID),
		"station_id":   strconv.Itoa(station.ID),
		"qc_record_id": strconv.Itoa(rec.ID),
		"action":       "qc_failure",
	}

	if err := f.SendMulticastNotification(ctx, tokens, title, body, data); err != nil {
		log.Printf("Error sending QC failure push: %v", err)
	}

	_, err = f.db.Exec(`
		INSERT INTO notifications (factory_id, message, status, action, created_at, updated_at)
		VALUES ($1, $2, 'unread', $3, NOW(), NOW())
	`, module.FactoryID, body, "qc_failure")
	if err != nil {
		return fmt.Errorf("error saving notification to database: %v", err)
	}
	return nil
}

// NotifySyncFailures alerts supervisors that a sync pass left actions failed.
func (f *FCMService) NotifySyncFailures(ctx context.Context, failed int64) error {
	tokens, err := f.supervisorTokens(0)
	if err != nil {
		return err
	}
	title := "Sync queue needs attention"
	body := fmt.Sprintf("%d queued action(s) failed to sync and need a manual retry", failed)
	return f.SendMulticastNotification(ctx, tokens, title, body, map[string]string{"action": "sync_failure"})
}

// SaveFCMToken stores a device token for a user.
func (f *FCMService) SaveFCMToken(userID int, token string) error {
	_, err := f.db.Exec(`UPDATE users SET fcm_token = $1 WHERE id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("error saving FCM token: %v", err)
	}
	return nil
}

// RemoveFCMToken clears a user's device token.
func (f *FCMService) RemoveFCMToken(userID int) error {
	_, err := f.db.Exec(`UPDATE users SET fcm_token = NULL WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error removing FCM token: %v", err)
	}
	return nil
}

func (f *FCMService) sendHTTPv1Request(ctx context.Context, endpoint, accessToken string, payload map[string]interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorResp map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err == nil {
			return fmt.Errorf("FCM API error (status %d): %v", resp.StatusCode, errorResp)
		}
		return fmt.Errorf("FCM API error: status code %d", resp.StatusCode)
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

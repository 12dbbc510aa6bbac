package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"golang.org/x/net/html"

	"modtrack/models"
)

// EmailService sends operational digests to factory supervisors. SMTP is
// configured from the environment: SMTP_HOST, SMTP_PORT, SMTP_USER,
// SMTP_PASSWORD, SMTP_FROM.
type EmailService struct {
	db *sql.DB
}

// NewEmailService creates a new email service instance.
func NewEmailService(db *sql.DB) *EmailService {
	return &EmailService{db: db}
}

// convertHTMLToText flattens HTML content to plain text for the email body.
func convertHTMLToText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var text strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "table", "tr":
				text.WriteString("\n")
			case "li":
				text.WriteString("- ")
			case "td", "th":
				text.WriteString(" | ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			extractText(child)
		}
	}
	extractText(doc)

	result := strings.ReplaceAll(text.String(), "\n\n\n", "\n\n")
	return strings.TrimSpace(result)
}

// supervisorEmails returns the addresses of active supervisors.
func (es *EmailService) supervisorEmails() ([]string, error) {
	rows, err := es.db.Query(`SELECT email FROM users WHERE role = 'supervisor' AND email IS NOT NULL AND email != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch supervisor emails: %v", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			log.Printf("Error scanning supervisor email: %v", err)
			continue
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// SendSyncFailureDigest mails supervisors the actions a sync pass could not
// apply, one line per action with its last error.
func (es *EmailService) SendSyncFailureDigest(errors []models.ActionError) error {
	if len(errors) == 0 {
		return nil
	}
	recipients, err := es.supervisorEmails()
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	var body strings.Builder
	body.WriteString("<p>The following queued actions failed to sync and need attention:</p><ul>")
	for _, e := range errors {
		body.WriteString(fmt.Sprintf("<li>%s: %s</li>", e.ActionID, e.Message))
	}
	body.WriteString("</ul><p>Use the retry endpoint after resolving the cause, or discard the action.</p>")

	subject := fmt.Sprintf("Sync failures: %d action(s) need attention", len(errors))
	return es.sendEmail(recipients, subject, convertHTMLToText(body.String()))
}

// sendEmail delivers one message to all recipients over SMTP.
func (es *EmailService) sendEmail(to []string, subject, body string) error {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("SMTP_FROM")
	if host == "" || from == "" {
		return fmt.Errorf("SMTP_HOST and SMTP_FROM must be set")
	}
	if port == "" {
		port = "587"
	}

	auth := smtp.PlainAuth("", user, password, host)

	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"",
		body,
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n")

	return smtp.SendMail(host+":"+port, auth, from, to, msg)
}

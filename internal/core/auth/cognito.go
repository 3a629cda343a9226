// Package auth implements the CuboAI credential lifecycle: the Cognito
// SRP login (with optional MFA), the vendor session exchange, durable
// token persistence and the refresh protocol.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cognitosrp "github.com/alexrudd/cognito-srp/v4"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

// MFA challenge kinds as the provider names them.
const (
	MFAKindSMS           = "SMS_MFA"
	MFAKindSoftwareToken = "SOFTWARE_TOKEN_MFA"
)

// MFAChallenge is the provider's demand for a second factor. It is
// consumed exactly once by submitting a code; expiry is the provider's
// policy and not tracked locally.
type MFAChallenge struct {
	Kind     string
	Session  string
	Username string
}

// codeField returns the challenge-response key the code must be
// submitted under. SMS is the default when the kind is unspecified.
func (m *MFAChallenge) codeField() string {
	if m.Kind == MFAKindSoftwareToken {
		return "SOFTWARE_TOKEN_MFA_CODE"
	}
	return "SMS_MFA_CODE"
}

// challengeName returns the provider challenge name, defaulting to SMS.
func (m *MFAChallenge) challengeName() string {
	if m.Kind == "" {
		return MFAKindSMS
	}
	return m.Kind
}

// IdentityResult is the token set minted by the identity provider on a
// completed login.
type IdentityResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

// CognitoConfig identifies the user pool and app client.
type CognitoConfig struct {
	Region       string
	PoolID       string
	ClientID     string
	ClientSecret string
	// Endpoint overrides the regional provider URL; used by tests.
	Endpoint string
}

// Cognito drives the two-step SRP exchange with the identity provider
// over its JSON protocol, plus the MFA challenge response.
type Cognito struct {
	cfg  CognitoConfig
	http *resty.Client
	log  *slog.Logger
}

// NewCognito creates an SRP authenticator for one user pool.
func NewCognito(cfg CognitoConfig, log *slog.Logger) *Cognito {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com", cfg.Region)
	}

	r := resty.New()
	r.SetBaseURL(endpoint)
	r.SetTimeout(30 * time.Second)
	r.SetHeader("Content-Type", "application/x-amz-json-1.1")

	return &Cognito{cfg: cfg, http: r, log: log}
}

// Provider wire shapes (AWS JSON 1.1).

type initiateAuthInput struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type respondToChallengeInput struct {
	ClientID           string            `json:"ClientId"`
	ChallengeName      string            `json:"ChallengeName"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
	Session            string            `json:"Session,omitempty"`
}

type challengeOutput struct {
	ChallengeName        string            `json:"ChallengeName"`
	ChallengeParameters  map[string]string `json:"ChallengeParameters"`
	Session              string            `json:"Session"`
	AuthenticationResult *IdentityResult   `json:"AuthenticationResult"`
}

// providerError is the provider's error body: {"__type": ..., "message": ...}.
type providerError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (c *Cognito) call(ctx context.Context, target string, in, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Amz-Target", "AWSCognitoIdentityProviderService."+target).
		SetBody(in).
		Post("/")
	if err != nil {
		return &Error{Kind: KindUpstreamUnavailable, Err: fmt.Errorf("cognito %s: %w", target, err)}
	}
	if resp.IsError() {
		var pe providerError
		_ = json.Unmarshal(resp.Body(), &pe)
		if pe.Type == "" {
			return fmt.Errorf("cognito %s: status %d: %s", target, resp.StatusCode(), resp.String())
		}
		return fmt.Errorf("cognito %s: %s: %s", target, pe.Type, pe.Message)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("cognito %s: decode response: %w", target, err)}
	}
	return nil
}

// Authenticate runs the SRP handshake for one user. Exactly one of the
// returned values is set: the identity result when the password alone
// suffices, or an MFA challenge when the provider demands a second
// factor. The MFA branch is detected by the ChallengeName field of the
// password-verifier response, never by an error.
func (c *Cognito) Authenticate(ctx context.Context, username, password string) (*IdentityResult, *MFAChallenge, error) {
	srp, err := cognitosrp.NewCognitoSRP(username, password, c.cfg.PoolID, c.cfg.ClientID, &c.cfg.ClientSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("cognito: srp setup: %w", err)
	}

	var initiated challengeOutput
	err = c.call(ctx, "InitiateAuth", initiateAuthInput{
		AuthFlow:       "USER_SRP_AUTH",
		ClientID:       c.cfg.ClientID,
		AuthParameters: srp.GetAuthParams(),
	}, &initiated)
	if err != nil {
		return nil, nil, c.loginError(err)
	}
	if initiated.ChallengeName != "PASSWORD_VERIFIER" {
		return nil, nil, &Error{Kind: KindUnknown,
			Err: fmt.Errorf("cognito: unexpected initial challenge %q", initiated.ChallengeName)}
	}

	responses, err := srp.PasswordVerifierChallenge(initiated.ChallengeParameters, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("cognito: password claim: %w", err)
	}
	srpUsername := initiated.ChallengeParameters["USER_ID_FOR_SRP"]
	if srpUsername == "" {
		srpUsername = username
	}
	responses["SECRET_HASH"] = SecretHash(srpUsername, c.cfg.ClientID, c.cfg.ClientSecret)

	var verified challengeOutput
	err = c.call(ctx, "RespondToAuthChallenge", respondToChallengeInput{
		ClientID:           c.cfg.ClientID,
		ChallengeName:      "PASSWORD_VERIFIER",
		ChallengeResponses: responses,
		Session:            initiated.Session,
	}, &verified)
	if err != nil {
		return nil, nil, c.loginError(err)
	}

	if verified.ChallengeName != "" {
		c.log.Debug("MFA challenge received", "kind", verified.ChallengeName)
		return nil, &MFAChallenge{
			Kind:     verified.ChallengeName,
			Session:  verified.Session,
			Username: srpUsername,
		}, nil
	}
	if verified.AuthenticationResult == nil {
		return nil, nil, &Error{Kind: KindMalformedResponse,
			Err: fmt.Errorf("cognito: password verifier returned neither tokens nor a challenge")}
	}
	return verified.AuthenticationResult, nil, nil
}

// RespondToMFA submits the one-time code for a pending challenge.
func (c *Cognito) RespondToMFA(ctx context.Context, chal *MFAChallenge, code string) (*IdentityResult, error) {
	responses := map[string]string{
		"USERNAME":       chal.Username,
		"SECRET_HASH":    SecretHash(chal.Username, c.cfg.ClientID, c.cfg.ClientSecret),
		chal.codeField(): code,
	}

	var out challengeOutput
	err := c.call(ctx, "RespondToAuthChallenge", respondToChallengeInput{
		ClientID:           c.cfg.ClientID,
		ChallengeName:      chal.challengeName(),
		ChallengeResponses: responses,
		Session:            chal.Session,
	}, &out)
	if err != nil {
		return nil, c.mfaError(err)
	}
	if out.AuthenticationResult == nil {
		return nil, &Error{Kind: KindMalformedResponse,
			Err: fmt.Errorf("cognito: mfa response carried no tokens")}
	}
	return out.AuthenticationResult, nil
}

func (c *Cognito) loginError(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: ClassifyLogin(err), Err: err}
}

func (c *Cognito) mfaError(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: ClassifyMFA(err), Err: err}
}

// DecodeSubject extracts the subject (user identifier) from an identity
// token without verifying its signature. The token comes straight from
// the provider over TLS and the subject is only used as the vendor
// login id, never for authorization.
func DecodeSubject(idToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("cognito: decode identity token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("cognito: identity token has no subject")
	}
	return sub, nil
}

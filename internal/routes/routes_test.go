package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/metrics"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
)

const (
	operatorEmail    = "ops@example.org"
	operatorPassword = "secret1"
	accessDenied     = "invalid code or form already completed"
)

type APITestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.Memory
	router *gin.Engine
	token  string
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.ctx = context.Background()
	s.store = store.NewMemory()

	cfg := &config.Config{PublicURL: "https://fiches.example.org"}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	auth := services.NewAuthService(s.store, nil, services.AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		ResetTTL:      time.Hour,
		PublicURL:     cfg.PublicURL,
	})

	s.router = gin.New()
	Register(s.router, Deps{
		Cfg:      cfg,
		Auth:     auth,
		Fiches:   &services.FicheService{Store: s.store, Metrics: m, PublicURL: cfg.PublicURL},
		Guardian: &services.GuardianService{Store: s.store, Metrics: m},
		Gatherer: reg,
	})

	s.Require().NoError(s.store.CreateInvite(s.ctx, &models.OperatorInvite{Email: operatorEmail}))
	rec := s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": operatorEmail, "password": operatorPassword}, false)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.token = s.login()
}

func (s *APITestSuite) login() string {
	rec := s.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": operatorEmail, "password": operatorPassword}, false)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := decode(s.T(), rec)
	return body["access_token"].(string)
}

func (s *APITestSuite) do(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// createFiche returns the new fiche id and its access code.
func (s *APITestSuite) createFiche(nom, prenom, email string) (string, string) {
	rec := s.do(http.MethodPost, "/api/v1/fiches", gin.H{"nom": nom, "prenom": prenom, "email": email}, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(s.T(), rec)
	fiche := body["fiche"].(map[string]interface{})
	inv := body["invitation"].(map[string]interface{})
	s.Equal(fiche["code"], inv["code"])
	s.Equal("https://fiches.example.org/?code="+inv["code"].(string), inv["url"])
	return fiche["id"].(string), inv["code"].(string)
}

func guardianForm() gin.H {
	return gin.H{
		"nomEnfant":             "Martin",
		"prenomEnfant":          "Léa",
		"dateNaissance":         "2017-09-04",
		"poids":                 "21.5",
		"sexe":                  "F",
		"nomParents":            "Martin",
		"telephone":             "06 11 22 33 44",
		"autorisationTransport": "oui",
		"autorisationPhotos":    "non",
	}
}

func (s *APITestSuite) TestEntryViews() {
	cases := []struct {
		path   string
		authed bool
		want   map[string]interface{}
	}{
		{"/?code=ab12cd", false, map[string]interface{}{"view": "form", "code": "AB12CD"}},
		{"/?code=short", false, map[string]interface{}{"view": "home"}},
		{"/?reset_token=abc", false, map[string]interface{}{"view": "reset"}},
		{"/", true, map[string]interface{}{"view": "backoffice"}},
		{"/", false, map[string]interface{}{"view": "home"}},
	}
	for _, tc := range cases {
		rec := s.do(http.MethodGet, tc.path, nil, tc.authed)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(tc.want, decode(s.T(), rec), tc.path)
	}
}

func (s *APITestSuite) TestConsoleRequiresSession() {
	rec := s.do(http.MethodGet, "/api/v1/fiches", nil, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("home", decode(s.T(), rec)["view"])

	s.token = "not-a-token"
	rec = s.do(http.MethodGet, "/api/v1/fiches", nil, true)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APITestSuite) TestFicheLifecycle() {
	id, code := s.createFiche("  Martin ", "Léa", "Parent@Example.org")

	rec := s.do(http.MethodGet, "/api/v1/guardian/fiches/"+strings.ToLower(code), nil, false)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	view := decode(s.T(), rec)
	s.Equal("Martin", view["nom"])
	s.Equal("Martin", view["data"].(map[string]interface{})["nomEnfant"])
	s.NotContains(view, "email")

	rec = s.do(http.MethodPost, "/api/v1/guardian/fiches/"+code, gin.H{"nomEnfant": "Martin"}, false)
	s.Equal(http.StatusBadRequest, rec.Code)

	nan := guardianForm()
	nan["poids"] = "NaN"
	rec = s.do(http.MethodPost, "/api/v1/guardian/fiches/"+code, nan, false)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/guardian/fiches/"+code, guardianForm(), false)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	// a completed form and an unknown code look the same
	completed := s.do(http.MethodGet, "/api/v1/guardian/fiches/"+code, nil, false)
	unknown := s.do(http.MethodGet, "/api/v1/guardian/fiches/ZZZZZZ", nil, false)
	s.Equal(http.StatusForbidden, completed.Code)
	s.Equal(http.StatusForbidden, unknown.Code)
	s.Equal(unknown.Body.String(), completed.Body.String())
	s.Equal(accessDenied, decode(s.T(), completed)["error"])

	rec = s.do(http.MethodPost, "/api/v1/guardian/fiches/"+code, guardianForm(), false)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/fiches/"+id+"/invitation", nil, true)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/fiches/print", gin.H{"ids": []string{id, id}}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	batch := decode(s.T(), rec)["fiches"].([]interface{})
	s.Require().Len(batch, 1)
	printed := batch[0].(map[string]interface{})
	s.Equal("printed", printed["status"])
	s.Equal("Léa", printed["data"].(map[string]interface{})["prenomEnfant"])

	rec = s.do(http.MethodPost, "/api/v1/fiches/"+id+"/sign", nil, true)
	s.Require().Equal(http.StatusPreconditionRequired, rec.Code)
	summary := decode(s.T(), rec)["fiche"].(map[string]interface{})
	s.Equal("printed", summary["status"])
	s.NotContains(summary, "data")

	rec = s.do(http.MethodGet, "/api/v1/fiches/"+id, nil, true)
	s.Equal("printed", decode(s.T(), rec)["fiche"].(map[string]interface{})["status"])

	rec = s.do(http.MethodPost, "/api/v1/fiches/"+id+"/sign?confirm=true", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	signed := decode(s.T(), rec)["fiche"].(map[string]interface{})
	s.Equal("signed", signed["status"])
	s.Nil(signed["data"])
	s.Empty(signed["actions"])

	rec = s.do(http.MethodDelete, "/api/v1/fiches/"+id+"?confirm=true", nil, true)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", nil, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodGet, "/metrics", nil, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `fiche_transitions_total{from="printed",to="signed"} 1`)
}

func (s *APITestSuite) TestListFilterAndActions() {
	s.createFiche("Martin", "Léa", "a@example.org")
	id, _ := s.createFiche("Durand", "Hugo", "b@example.org")

	rec := s.do(http.MethodPost, "/api/v1/fiches/"+id+"/simulate", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/fiches?status=filled", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	items := decode(s.T(), rec)["data"].([]interface{})
	s.Require().Len(items, 1)
	item := items[0].(map[string]interface{})
	s.Equal(id, item["id"])
	s.Equal([]interface{}{"print", "delete"}, item["actions"])

	rec = s.do(http.MethodGet, "/api/v1/fiches?q=mart", nil, true)
	s.Len(decode(s.T(), rec)["data"], 1)

	rec = s.do(http.MethodGet, "/api/v1/fiches?status=lost", nil, true)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestDeleteNeedsConfirmation() {
	id, code := s.createFiche("Martin", "Léa", "a@example.org")

	rec := s.do(http.MethodDelete, "/api/v1/fiches/"+id, nil, true)
	s.Equal(http.StatusPreconditionRequired, rec.Code)

	rec = s.do(http.MethodDelete, "/api/v1/fiches/"+id+"?confirm=true", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/fiches/"+id, nil, true)
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/guardian/fiches/"+code, nil, false)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/fiches/not-a-uuid", nil, true)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestRemindFallsBackToMailto() {
	id, code := s.createFiche("Martin", "Léa", "parent@example.org")

	rec := s.do(http.MethodPost, "/api/v1/fiches/"+id+"/remind", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	delivery := decode(s.T(), rec)["delivery"].(map[string]interface{})
	s.Equal(false, delivery["sent"])
	s.True(strings.HasPrefix(delivery["mailto_url"].(string), "mailto:parent@example.org"))
	s.Contains(delivery["mailto_url"], code)
}

func (s *APITestSuite) TestImportRoster() {
	csv := "\ufeffnom;prénom;email\r\nMartin;Léa;a@example.org\r\nDurand;;b@example.org\r\n"

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "roster.csv")
	s.Require().NoError(err)
	_, err = part.Write([]byte(csv))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fiches/import", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	summary := decode(s.T(), rec)["summary"].(map[string]interface{})
	s.Equal(float64(2), summary["total_rows"])
	s.Equal(float64(1), summary["inserted"])
	s.Equal(float64(1), summary["failed"])

	rec = s.do(http.MethodPost, "/api/v1/fiches/import", nil, true)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestOperatorInvitations() {
	rec := s.do(http.MethodPost, "/api/v1/operators/invitations", gin.H{"email": " New@Example.org "}, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/operators/invitations", gin.H{"email": "new@example.org"}, true)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("already invited", decode(s.T(), rec)["error"])

	rec = s.do(http.MethodGet, "/api/v1/operators/invitations", nil, true)
	s.Len(decode(s.T(), rec)["data"], 2)

	rec = s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "stranger@example.org", "password": "secret1"}, false)
	s.Equal(http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "new@example.org", "password": "abc"}, false)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "new@example.org", "password": strings.Repeat("a", 80)}, false)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "new@example.org", "password": "secret2"}, false)
	s.Equal(http.StatusCreated, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": operatorEmail, "password": "secret2"}, false)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *APITestSuite) TestRefreshRotatesToken() {
	rec := s.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": operatorEmail, "password": "wrong-one"}, false)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": operatorEmail, "password": operatorPassword}, false)
	refresh := decode(s.T(), rec)["refresh_token"].(string)

	rec = s.do(http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": refresh}, false)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.NotEmpty(decode(s.T(), rec)["access_token"])

	rec = s.do(http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": refresh}, false)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/auth/me", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(operatorEmail, decode(s.T(), rec)["email"])
}

func (s *APITestSuite) TestPasswordResetRoutes() {
	rec := s.do(http.MethodPost, "/api/v1/auth/password/forgot", gin.H{"email": "nobody@example.org"}, false)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/password/forgot", gin.H{"email": operatorEmail}, false)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/password/reset", gin.H{"token": "x", "password": "secret9", "confirm": "secret8"}, false)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/auth/password/reset", gin.H{"token": "x", "password": "secret9", "confirm": "secret9"}, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APITestSuite) TestPublicConfig() {
	rec := s.do(http.MethodGet, "/api/v1/config/public", nil, false)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := decode(s.T(), rec)
	s.Equal(float64(6), body["code_length"])
	s.Contains(body["required_fields"], "autorisationPhotos")
	s.Equal("https://fiches.example.org", body["public_url"])
}

// Package portaltest runs an in-process imitation of the academic-affairs
// portal (and of the OCR service) for tests.
package portaltest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

const (
	sessionCookie = "student.urpSoft.cn"

	PathOcr = "/ocr"
	// PathEvaluationPage and PathSave mirror the evaluation package constants.
	PathEvaluationPage = "/student/teachingEvaluation/newEvaluation/evaluation/"
	PathSave           = "/student/teachingAssessment/baseInformation/questionsAdd/doSave"

	DefaultCaptcha = "x7k2"
	RejectReason   = "验证码错误"
)

// CatalogRecord is one raw entry of the evaluation list, a nil SFPG is omitted
// from the JSON.
type CatalogRecord struct {
	KTID string
	KCM  string
	WJBM string
	SFPG *string
}

func Flag(value string) *string {
	return &value
}

// SaveCall is one request received by the save endpoint.
type SaveCall struct {
	Phase      string
	QueryToken string
	Form       url.Values
}

type Server struct {
	*httptest.Server

	Username string
	Password string
	Captcha  string

	// RejectLogins rejects this many login attempts before accepting correct
	// credentials.
	RejectLogins int
	// LoginPage replaces the login page html when set.
	LoginPage string
	// LoginResponse replaces the page returned after a rejected login when set.
	LoginResponse string
	// OcrBody replaces the OCR service response when set.
	OcrBody string

	Records []CatalogRecord
	// CatalogBody replaces the evaluation list response when set.
	CatalogBody string

	// Page renders the evaluation page for a record, defaults to EvaluationPage.
	Page func(ktid, token string) string
	// Save answers save requests, defaults to the portal's two-phase behavior.
	Save func(call SaveCall, issued string) (int, string)

	mu             sync.Mutex
	counter        int
	sessions       map[string]bool
	pageTokens     map[string]bool
	trialTokens    map[string]bool
	LoginAttempts  int
	CaptchaFetches int
	Saves          []SaveCall
}

func New() *Server {
	s := &Server{
		Username:    "2023141460001",
		Password:    "hunter2",
		Captcha:     DefaultCaptcha,
		sessions:    map[string]bool{},
		pageTokens:  map[string]bool{},
		trialTokens: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLoginPage)
	mux.HandleFunc("/img/captcha.jpg", s.handleCaptcha)
	mux.HandleFunc("/j_spring_security_check", s.handleLoginSubmit)
	mux.HandleFunc("/index", s.handleIndex)
	mux.HandleFunc("/student/teachingAssessment/evaluation/queryAll", s.handleCatalog)
	mux.HandleFunc(PathEvaluationPage, s.handleEvaluationPage)
	mux.HandleFunc(PathSave, s.handleSave)
	mux.HandleFunc(PathOcr, s.handleOcr)

	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) OcrUrl() string {
	return s.URL + PathOcr
}

// SaveCalls returns a copy of the save requests received so far.
func (s *Server) SaveCalls() []SaveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SaveCall(nil), s.Saves...)
}

func (s *Server) nextToken(prefix string) string {
	s.counter++
	return fmt.Sprintf("%s%04d", prefix, s.counter)
}

func (s *Server) session(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) authenticated(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.session(r)]
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session(r) == "" {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: s.nextToken("session"), Path: "/"})
	}
	if s.LoginPage != "" {
		w.Write([]byte(s.LoginPage))
		return
	}
	token := s.nextToken("login")
	s.pageTokens[token] = true
	fmt.Fprintf(w, `<html><body><form action="/j_spring_security_check" method="post">
<input type="hidden" id="tokenValue" name="tokenValue" value="%s">
<input name="j_username"><input name="j_password" type="password"><input name="j_captcha">
</form></body></html>`, token)
}

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.CaptchaFetches++
	s.mu.Unlock()

	w.Header().Set("content-type", "image/png")
	w.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'})
}

func (s *Server) handleOcr(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	w.Header().Set("content-type", "application/json")
	if s.OcrBody != "" {
		w.Write([]byte(s.OcrBody))
		return
	}
	if !strings.HasPrefix(r.PostForm.Get("base64img"), "data:image/") || r.PostForm.Get("type") == "" {
		w.Write([]byte(`{"code": 400, "msg": "bad request"}`))
		return
	}
	fmt.Fprintf(w, `{"code": 200, "captcha": "%s"}`, s.Captcha)
}

func failurePage(reason string) string {
	return fmt.Sprintf(`<html><body><div class="alert alert-danger">
<strong>发生错误！</strong>%s!
</div></body></html>`, reason)
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoginAttempts++

	session := s.session(r)
	if session == "" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	token := r.PostForm.Get("tokenValue")
	if !s.pageTokens[token] {
		w.Write([]byte(failurePage("token失效")))
		return
	}
	delete(s.pageTokens, token)

	if s.RejectLogins > 0 {
		s.RejectLogins--
		if s.LoginResponse != "" {
			w.Write([]byte(s.LoginResponse))
			return
		}
		w.Write([]byte(failurePage(RejectReason)))
		return
	}
	if s.LoginResponse != "" {
		w.Write([]byte(s.LoginResponse))
		return
	}

	sum := md5.Sum([]byte(s.Password))
	switch {
	case r.PostForm.Get("j_captcha") != s.Captcha:
		w.Write([]byte(failurePage(RejectReason)))
	case r.PostForm.Get("j_username") != s.Username ||
		r.PostForm.Get("j_password") != hex.EncodeToString(sum[:]):
		w.Write([]byte(failurePage("用户名或密码错误")))
	default:
		s.sessions[session] = true
		http.Redirect(w, r, "/index", http.StatusFound)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	w.Write([]byte(`<html><body><span>欢迎您，同学</span></body></html>`))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.Write([]byte(`<html><body>请先登录</body></html>`))
		return
	}
	r.ParseForm()
	if r.PostForm.Get("pageNum") != "1" || r.PostForm.Get("pageSize") != "30" || r.PostForm.Get("flag") != "kt" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("content-type", "application/json")
	if s.CatalogBody != "" {
		w.Write([]byte(s.CatalogBody))
		return
	}

	records := []map[string]any{}
	for _, rec := range s.Records {
		entry := map[string]any{"KTID": rec.KTID, "KCM": rec.KCM, "WJBM": rec.WJBM}
		if rec.SFPG != nil {
			entry["SFPG"] = *rec.SFPG
		}
		records = append(records, entry)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"records": records},
	})
}

func (s *Server) handleEvaluationPage(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ktid := strings.TrimPrefix(r.URL.Path, PathEvaluationPage)

	s.mu.Lock()
	token := s.nextToken("page")
	s.pageTokens[token] = true
	render := s.Page
	s.mu.Unlock()

	if render == nil {
		render = func(_, token string) string { return EvaluationPage(token) }
	}
	w.Write([]byte(render(ktid, token)))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	err := r.ParseMultipartForm(1 << 20)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	call := SaveCall{
		Phase:      r.MultipartForm.Value["tjcs"][0],
		QueryToken: r.URL.Query().Get("tokenValue"),
		Form:       url.Values(r.MultipartForm.Value),
	}

	s.mu.Lock()
	s.Saves = append(s.Saves, call)
	issued := ""
	if call.Phase == "0" {
		issued = s.nextToken("trial")
	}
	status, body := s.defaultSave(call, issued)
	if s.Save != nil {
		status, body = s.Save(call, issued)
	}
	s.mu.Unlock()

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// defaultSave requires every phase to carry a token the server issued, phase 0
// consumes an evaluation page token and phase 1 a trial token.
func (s *Server) defaultSave(call SaveCall, issued string) (int, string) {
	formToken := call.Form.Get("tokenValue")
	if formToken != call.QueryToken {
		return http.StatusOK, `{"result": "token mismatch"}`
	}

	switch call.Phase {
	case "0":
		if !s.pageTokens[formToken] {
			return http.StatusOK, `{"result": "token invalid"}`
		}
		delete(s.pageTokens, formToken)
		s.trialTokens[issued] = true
		return http.StatusOK, fmt.Sprintf(`{"result": "ok", "token": "%s"}`, issued)
	case "1":
		if !s.trialTokens[formToken] {
			return http.StatusOK, `{"result": "token invalid"}`
		}
		delete(s.trialTokens, formToken)
		return http.StatusOK, `{"result": "ok"}`
	}
	return http.StatusBadRequest, `{"result": "bad phase"}`
}

package web

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ops"
	"github.com/zzeiidann/DNAI/internal/prefs"
)

// maxFormBytes bounds non-upload form bodies.
const maxFormBytes = 64 << 10

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	st       *ops.State
	analyzer ops.Analyzer
	chatter  ops.Chatter
	auth     ops.Authenticator
	cfg      *config.Config
	renderer *Renderer
	logger   *zap.Logger
}

// page builds the common page fields for r.
func (h *Handlers) page(r *http.Request, title, nav string) PageData {
	theme, err := prefs.GetTheme(r.Context(), h.st.KV)
	if err != nil {
		h.logger.Warn("reading theme", zap.Error(err))
		theme = prefs.DefaultTheme
	}
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Theme:   theme,
		User:    h.st.Session.User(),
		Path:    r.URL.Path,
	}
}

// requireAuth reloads state so writes from other processes show up, then
// redirects to /login unless the session is live. A logout from the CLI
// therefore takes effect on the next request.
func (h *Handlers) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.st.Reload(r.Context()); err != nil {
			h.renderer.renderError(w, r, h.page(r, "", ""), err)
			return
		}
		if !h.st.Session.Authenticated() {
			redirect(w, r, "/login")
			return
		}
		next(w, r)
	})
}

// redirect sends a 303, or an HX-Redirect for htmx requests.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// HandleDashboard handles GET /dashboard: today's totals, goal progress, recent foods.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page := h.page(r, "Dashboard", "dashboard")
	summary, err := ops.Summary(h.st.Ledger, h.cfg, ops.SummaryInput{Date: r.URL.Query().Get("date")})
	if err != nil {
		h.renderer.renderError(w, r, page, err)
		return
	}
	h.renderer.renderPage(w, r, "dashboard", DashboardPageData{PageData: page, Summary: summary})
}

// HandleTracker handles GET /tracker: one day's entries and the manual entry form.
func (h *Handlers) HandleTracker(w http.ResponseWriter, r *http.Request) {
	h.renderTracker(w, r, http.StatusOK, r.URL.Query().Get("date"), EntryForm{Date: r.URL.Query().Get("date")}, "")
}

func (h *Handlers) renderTracker(w http.ResponseWriter, r *http.Request, status int, date string, form EntryForm, formErr string) {
	page := h.page(r, "Tracker", "tracker")
	list, err := ops.ListEntries(h.st.Ledger, ops.ListEntriesInput{Date: date})
	if err != nil {
		h.renderer.renderError(w, r, page, err)
		return
	}
	h.renderer.renderPageStatus(w, r, status, "tracker", TrackerPageData{
		PageData: page,
		List:     list,
		Goal:     h.cfg.DailyGoal,
		Today:    list.Date == h.st.Ledger.Today(),
		Form:     form,
		Error:    formErr,
	})
}

// HandleAddEntry handles POST /tracker/entries: the manual entry form.
func (h *Handlers) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "tracker"), errors.NewInvalidRequest("invalid form data"))
		return
	}

	form := EntryForm{
		Name:     r.PostFormValue("name"),
		Calories: r.PostFormValue("calories"),
		Protein:  r.PostFormValue("protein"),
		Carbs:    r.PostFormValue("carbs"),
		Fat:      r.PostFormValue("fat"),
		Date:     r.PostFormValue("date"),
	}
	out, err := ops.AddEntry(r.Context(), h.st.Ledger, ops.AddEntryInput(form))
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			h.renderTracker(w, r, http.StatusBadRequest, form.Date, form, errors.As(err).Message)
			return
		}
		h.renderer.renderError(w, r, h.page(r, "", "tracker"), err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, out)
		return
	}
	redirect(w, r, trackerURL(form.Date))
}

// HandleDeleteEntry handles POST /tracker/entries/{id}/delete and DELETE /tracker/entries/{id}.
func (h *Handlers) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteEntry(r.Context(), h.st.Ledger, ops.DeleteEntryInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "tracker"), err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	redirect(w, r, trackerURL(r.FormValue("date")))
}

func trackerURL(date string) string {
	if date == "" {
		return "/tracker"
	}
	return "/tracker?date=" + url.QueryEscape(date)
}

// HandleAnalyzer handles GET /analyzer: the upload form.
func (h *Handlers) HandleAnalyzer(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "analyzer", AnalyzerPageData{PageData: h.page(r, "Food Analyzer", "analyzer")})
}

// HandleAnalyze handles POST /analyzer: a multipart photo upload in field "image".
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	page := h.page(r, "Food Analyzer", "analyzer")
	fail := func(err error) {
		dErr := errors.As(err)
		if dErr.Code == errors.ErrInternal {
			h.renderer.renderError(w, r, page, err)
			return
		}
		h.renderer.renderPageStatus(w, r, dErr.Status, "analyzer", AnalyzerPageData{PageData: page, Error: dErr.Message})
	}

	limit := h.cfg.MaxImageBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxFormBytes)
	if err := r.ParseMultipartForm(limit + maxFormBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			fail(errors.NewImageTooLarge(limit, r.ContentLength))
			return
		}
		fail(errors.NewInvalidRequest("expected a multipart upload"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		fail(errors.NewInvalidRequest("choose a photo to analyze"))
		return
	}
	defer file.Close()

	out, err := ops.AnalyzeFood(r.Context(), h.analyzer, h.st.Ledger, h.cfg, ops.AnalyzeFoodInput{
		Filename: header.Filename,
		Image:    file,
		Track:    r.FormValue("track") == "true",
	})
	if err != nil {
		fail(err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	h.renderer.renderPage(w, r, "analyzer", AnalyzerPageData{PageData: page, Analysis: &out.Analysis, Tracked: out.Entry})
}

// HandleTrack handles POST /analyzer/track: adds a shown analysis to the ledger.
func (h *Handlers) HandleTrack(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	page := h.page(r, "Food Analyzer", "analyzer")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, page, errors.NewInvalidRequest("invalid form data"))
		return
	}

	analysis, err := analysisFromForm(r.PostForm)
	if err != nil {
		h.renderer.renderError(w, r, page, err)
		return
	}
	out, err := ops.TrackAnalysis(r.Context(), h.st.Ledger, ops.TrackAnalysisInput{Analysis: analysis})
	if err != nil {
		h.renderer.renderError(w, r, page, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, out)
		return
	}
	h.renderer.renderPage(w, r, "analyzer", AnalyzerPageData{PageData: page, Analysis: &analysis, Tracked: &out.Entry})
}

// analysisFromForm reads the hidden fields the analyzer result carries.
func analysisFromForm(v url.Values) (backend.Analysis, error) {
	a := backend.Analysis{
		FoodName: strings.TrimSpace(v.Get("food_name")),
		Place:    v.Get("place"),
	}
	if a.FoodName == "" {
		return a, errors.NewInvalidRequest("food_name is required")
	}

	var err error
	parse := func(field string) float64 {
		s := strings.TrimSpace(v.Get(field))
		if s == "" || err != nil {
			return 0
		}
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			err = errors.NewInvalidRequest(field + " must be a number")
			return 0
		}
		return f
	}
	a.Calories = int(parse("calories") + 0.5)
	a.Protein = parse("protein")
	a.Carbs = parse("carbs")
	a.Fat = parse("fat")
	if strings.TrimSpace(v.Get("confidence")) != "" {
		c := parse("confidence")
		a.Confidence = &c
	}
	a.Price = int(parse("price"))
	return a, err
}

// HandleChat handles GET /chat: the active conversation and the thread list.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	h.renderChat(w, r, http.StatusOK, "")
}

func (h *Handlers) renderChat(w http.ResponseWriter, r *http.Request, status int, notice string) {
	active := h.st.Chat.Active()
	h.renderer.renderPageStatus(w, r, status, "chat", ChatPageData{
		PageData:       h.page(r, "Chat", "chat"),
		Conversations:  ops.ListConversations(h.st.Chat).Conversations,
		Active:         active,
		Messages:       messageViews(active.Messages),
		QuickQuestions: chat.QuickQuestions,
		ShowQuick:      !active.HasUserTurn(),
		Notice:         notice,
	})
}

// HandleChatSend handles POST /chat/send. A backend failure still shows
// the thread, with the apology appended.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "chat"), errors.NewInvalidRequest("invalid form data"))
		return
	}

	out, err := ops.SendChat(r.Context(), h.st.Chat, h.chatter, ops.SendChatInput{
		Message:        r.PostFormValue("message"),
		ConversationID: r.PostFormValue("conversation_id"),
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			h.renderChat(w, r, http.StatusBadRequest, errors.As(err).Message)
			return
		}
		h.renderer.renderError(w, r, h.page(r, "", "chat"), err)
		return
	}
	if out.Failed {
		h.logger.Warn("chat backend failed", zap.String("error", out.Error))
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	redirect(w, r, "/chat")
}

// HandleChatCreate handles POST /chat/new.
func (h *Handlers) HandleChatCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := ops.CreateConversation(r.Context(), h.st.Chat); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "chat"), err)
		return
	}
	redirect(w, r, "/chat")
}

// HandleChatSelect handles POST /chat/{id}/select.
func (h *Handlers) HandleChatSelect(w http.ResponseWriter, r *http.Request) {
	if _, err := ops.SelectConversation(r.Context(), h.st.Chat, ops.ConversationInput{ID: r.PathValue("id")}); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "chat"), err)
		return
	}
	redirect(w, r, "/chat")
}

// HandleChatReset handles POST /chat/{id}/reset: back to just the greeting.
func (h *Handlers) HandleChatReset(w http.ResponseWriter, r *http.Request) {
	if _, err := ops.ResetConversation(r.Context(), h.st.Chat, ops.ConversationInput{ID: r.PathValue("id")}); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "chat"), err)
		return
	}
	redirect(w, r, "/chat")
}

// HandleChatDelete handles POST /chat/{id}/delete.
func (h *Handlers) HandleChatDelete(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteConversation(r.Context(), h.st.Chat, ops.ConversationInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "chat"), err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	redirect(w, r, "/chat")
}

// HandleLoginPage handles GET /login.
func (h *Handlers) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if err := h.st.Session.Reload(r.Context()); err != nil {
		h.logger.Warn("reloading session", zap.Error(err))
	}
	if h.st.Session.Authenticated() {
		redirect(w, r, "/dashboard")
		return
	}
	data := AuthPageData{PageData: h.page(r, "Masuk", "")}
	if r.URL.Query().Get("registered") == "1" {
		data.Message = "Registrasi berhasil. Silakan masuk."
	}
	h.renderer.renderPage(w, r, "login", data)
}

// HandleLogin handles POST /login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", ""), errors.NewInvalidRequest("invalid form data"))
		return
	}

	email := r.PostFormValue("email")
	_, err := ops.Login(r.Context(), h.auth, h.st.Session, ops.LoginInput{
		Email:    email,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		dErr := errors.As(err)
		if dErr.Code == errors.ErrInternal {
			h.renderer.renderError(w, r, h.page(r, "", ""), err)
			return
		}
		h.renderer.renderPageStatus(w, r, dErr.Status, "login", AuthPageData{
			PageData: h.page(r, "Masuk", ""),
			Email:    email,
			Error:    dErr.Message,
		})
		return
	}
	redirect(w, r, "/dashboard")
}

// HandleRegisterPage handles GET /register.
func (h *Handlers) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "register", AuthPageData{PageData: h.page(r, "Daftar", "")})
}

// HandleRegister handles POST /register. Success sends the user to log in.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", ""), errors.NewInvalidRequest("invalid form data"))
		return
	}

	input := ops.RegisterInput{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	if _, err := ops.Register(r.Context(), h.auth, input); err != nil {
		dErr := errors.As(err)
		if dErr.Code == errors.ErrInternal {
			h.renderer.renderError(w, r, h.page(r, "", ""), err)
			return
		}
		h.renderer.renderPageStatus(w, r, dErr.Status, "register", AuthPageData{
			PageData: h.page(r, "Daftar", ""),
			Username: input.Username,
			Email:    input.Email,
			Error:    dErr.Message,
		})
		return
	}
	redirect(w, r, "/login?registered=1")
}

// HandleLogout handles POST /logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := ops.Logout(r.Context(), h.st.Session); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", ""), err)
		return
	}
	redirect(w, r, "/login")
}

// HandleTheme handles POST /theme: toggles dark/light and returns to the page.
func (h *Handlers) HandleTheme(w http.ResponseWriter, r *http.Request) {
	if _, err := prefs.ToggleTheme(r.Context(), h.st.KV); err != nil {
		h.renderer.renderError(w, r, h.page(r, "", ""), err)
		return
	}
	redirect(w, r, localReturn(r.FormValue("return")))
}

// localReturn accepts only same-site absolute paths.
func localReturn(to string) string {
	if !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || strings.Contains(to, "\\") {
		return "/dashboard"
	}
	return to
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

func (a *App) render(w http.ResponseWriter, page string, data any) {
	if err := a.templates[page].ExecuteTemplate(w, page, data); err != nil {
		slog.Error("template render failed", "page", page, "error", err)
	}
}

func (a *App) renderNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	a.render(w, "404.html", map[string]any{"User": getContextUser(r)})
}

// handleHome shows the landing page, or the listing when already logged in.
func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	if getContextUser(r) != nil {
		http.Redirect(w, r, "/jokers", http.StatusSeeOther)
		return
	}
	a.render(w, "home.html", map[string]any{})
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "login.html", map[string]any{})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := strings.TrimSpace(r.FormValue("password"))

	if username == "" || password == "" {
		a.render(w, "login.html", map[string]any{"Error": "Please fill in all required fields"})
		return
	}

	user, err := a.store.GetUserByUsername(username)
	if errors.Is(err, ErrNotFound) {
		a.render(w, "login.html", map[string]any{"Error": "Invalid username or password"})
		return
	}
	if err != nil {
		logFromContext(r.Context()).Error("login lookup failed", "error", err)
		a.render(w, "login.html", map[string]any{"Error": "An error occurred during login"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		a.render(w, "login.html", map[string]any{"Error": "Invalid username or password"})
		return
	}

	if err := a.startSession(w, user.ID); err != nil {
		logFromContext(r.Context()).Error("session create failed", "error", err)
		a.render(w, "login.html", map[string]any{"Error": "An error occurred during login"})
		return
	}
	http.Redirect(w, r, "/jokers", http.StatusSeeOther)
}

func (a *App) startSession(w http.ResponseWriter, userID int) error {
	token := randomHex(32)
	if err := a.store.CreateSession(token, userID); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *App) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "signup.html", map[string]any{})
}

func (a *App) handleSignup(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := strings.TrimSpace(r.FormValue("password"))
	confirm := strings.TrimSpace(r.FormValue("confirm_password"))

	fail := func(msg string) {
		a.render(w, "signup.html", map[string]any{"Error": msg})
	}

	if username == "" || password == "" {
		fail("Please fill in all required fields")
		return
	}
	if password != confirm {
		fail("Passwords do not match")
		return
	}
	if len(password) < 6 {
		fail("Password must be at least 6 characters long")
		return
	}

	if _, err := a.store.GetUserByUsername(username); err == nil {
		fail("Username already exists")
		return
	} else if !errors.Is(err, ErrNotFound) {
		logFromContext(r.Context()).Error("signup lookup failed", "error", err)
		fail("An error occurred during registration")
		return
	}

	userID, err := a.store.CreateUser(username, password)
	if err != nil {
		// The unique constraint backstops a concurrent signup with the same name.
		logFromContext(r.Context()).Error("signup insert failed", "error", err)
		fail("An error occurred during registration")
		return
	}

	if err := a.startSession(w, userID); err != nil {
		logFromContext(r.Context()).Error("session create failed", "error", err)
		fail("An error occurred during registration")
		return
	}
	http.Redirect(w, r, "/jokers", http.StatusSeeOther)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		a.store.DeleteSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleJokers renders the filterable, sortable catalog listing.
func (a *App) handleJokers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := listFilters{
		SortBy:     q.Get("sort_by"),
		Order:      q.Get("order"),
		Rarity:     q.Get("rarity"),
		Type:       q.Get("type"),
		Activation: q.Get("activation"),
		Search:     q.Get("search"),
		Unlocked:   q.Get("unlocked"),
	}.normalize()

	identity := getContextIdentity(r)

	var (
		jokers      []Joker
		rarities    []RefOption
		types       []RefOption
		activations []RefOption
	)

	rarities, err := a.store.ListRarities()
	if err == nil {
		types, err = a.store.ListTypes()
	}
	if err == nil {
		activations, err = a.store.ListActivations()
	}
	if err == nil {
		jokers, err = a.store.ListJokers(filters, identity.Key())
	}
	if err != nil {
		// Never render a partial page: drop everything on a store failure.
		logFromContext(r.Context()).Error("listing query failed", "error", err)
		jokers, rarities, types, activations = nil, nil, nil, nil
	}

	a.render(w, "jokers.html", map[string]any{
		"User":             getContextUser(r),
		"Jokers":           jokers,
		"Rarities":         rarities,
		"Types":            types,
		"Activations":      activations,
		"CurrentSort":      filters.SortBy,
		"CurrentOrder":     filters.Order,
		"RarityFilter":     filters.Rarity,
		"TypeFilter":       filters.Type,
		"ActivationFilter": filters.Activation,
		"SearchQuery":      filters.Search,
		"UnlockedFilter":   filters.Unlocked,
	})
}

func (a *App) handleJokerDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		a.renderNotFound(w, r)
		return
	}

	identity := getContextIdentity(r)
	joker, err := a.store.GetJoker(id, identity.Key())
	if errors.Is(err, ErrNotFound) {
		a.renderNotFound(w, r)
		return
	}
	if err != nil {
		logFromContext(r.Context()).Error("joker detail query failed", "error", err)
		a.renderNotFound(w, r)
		return
	}

	a.render(w, "joker_detail.html", map[string]any{
		"User":  getContextUser(r),
		"Joker": joker,
	})
}

// handleToggleUnlock flips the unlock state for the caller, then sends them
// back where they came from.
func (a *App) handleToggleUnlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		a.renderNotFound(w, r)
		return
	}

	identity := getContextIdentity(r)
	err = a.store.ToggleUnlock(id, identity.Key())
	if errors.Is(err, ErrNotFound) {
		a.renderNotFound(w, r)
		return
	}
	if err != nil {
		logFromContext(r.Context()).Error("unlock toggle failed", "joker_id", id, "error", err)
	} else {
		unlockToggles.Inc()
	}

	if referrer := r.Header.Get("Referer"); referrer != "" {
		http.Redirect(w, r, referrer, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/jokers", http.StatusSeeOther)
}

type feedbackForm struct {
	Name    string `validate:"max=100"`
	Email   string `validate:"omitempty,email"`
	Comment string `validate:"required"`
	Rating  int    `validate:"required,min=1,max=5"`
}

func (a *App) handleFeedbackPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "feedback.html", map[string]any{"User": getContextUser(r)})
}

func (a *App) handleFeedback(w http.ResponseWriter, r *http.Request) {
	respond := func(message, messageType string) {
		a.render(w, "feedback.html", map[string]any{
			"User":        getContextUser(r),
			"Message":     message,
			"MessageType": messageType,
		})
	}

	rating, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("rating")))
	form := feedbackForm{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Email:   strings.TrimSpace(r.FormValue("email")),
		Comment: strings.TrimSpace(r.FormValue("feedback")),
		Rating:  rating,
	}

	if err := a.validate.Struct(form); err != nil {
		respond(feedbackErrorMessage(err), "error")
		return
	}

	if err := a.store.AddFeedback(form.Name, form.Email, form.Comment, form.Rating); err != nil {
		logFromContext(r.Context()).Error("feedback insert failed", "error", err)
		respond("An error occurred while submitting your feedback. Please try again.", "error")
		return
	}

	respond("Thank you for your feedback!", "success")
}

func feedbackErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Field() {
			case "Email":
				return "Please enter a valid email address."
			case "Rating":
				if fe.Tag() == "min" || fe.Tag() == "max" {
					return "Rating must be between 1 and 5."
				}
			case "Name":
				return "Name is too long."
			}
		}
	}
	return "Please fill in all required fields."
}

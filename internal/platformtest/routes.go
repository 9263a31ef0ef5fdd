package platformtest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"practicum/pkg/types"
)

type ctxKey struct{}

func userIDFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

func (p *Platform) authRoutes(r chi.Router) {
	r.Post("/login", p.handleLogin)
	r.Post("/register", p.handleRegister)
	r.Post("/refresh", p.handleRefresh)
	r.With(p.authMiddleware).Put("/profile", p.handleUpdateProfile)
}

func (p *Platform) mainRoutes(r chi.Router) {
	r.Get("/tasks/", p.handleTasks)
	r.Get("/tasks/filter", p.handleFilterTasks)
	r.Get("/tasks/{id}", p.handleTask)
	r.Get("/themes/", p.handleThemes)
	r.Get("/theory/{id}", p.handleTheory)
	r.Get("/user_solved/{userID}", p.handleSolved)
	r.Post("/mark_solved", p.handleMarkSolved)
	r.Post("/submit_code", p.handleSubmit)
	r.Get("/user_submissions/{userID}/{taskID}", p.handleSubmissions)
	r.Get("/profile/{userID}", p.handleProfile)
	r.Get("/user_info/{userID}", p.handleUserInfo)
	for _, target := range []string{"tasks", "theory"} {
		r.Get("/"+target+"/{id}/comments", p.handleComments(target))
		r.Post("/"+target+"/{id}/comments", p.handleAddComment(target))
	}
	r.Delete("/comments/{id}", p.handleDeleteComment)
}

// authMiddleware accepts only current access tokens.
func (p *Platform) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		forced := p.force401 > 0
		if forced {
			p.force401--
		}
		p.mu.Unlock()
		if forced {
			sendError(w, "Token has expired", http.StatusUnauthorized)
			return
		}

		userID, err := p.tokens.verify(bearer(r), tokenAccess)
		if err != nil {
			sendError(w, "Token has expired", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (p *Platform) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.loginCalls++
	var found *account
	for _, acc := range p.accounts {
		if acc.user.Login == creds.Login || acc.user.Email == creds.Login {
			found = acc
			break
		}
	}
	p.mu.Unlock()

	if found == nil || found.password != creds.Password {
		sendError(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}

	access, err := p.tokens.issue(found.user.ID, tokenAccess)
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	refresh, err := p.tokens.issue(found.user.ID, tokenRefresh)
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	user := found.user
	sendJSON(w, http.StatusOK, types.LoginResponse{AccessToken: access, RefreshToken: refresh, User: &user})
}

func (p *Platform) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg types.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acc := range p.accounts {
		if acc.user.Login == reg.Login || acc.user.Email == reg.Email {
			sendError(w, "User with this login or email already exists", http.StatusConflict)
			return
		}
	}

	id := p.nextUserID
	p.nextUserID++
	p.addAccount(types.User{ID: id, Name: reg.Name, Login: reg.Login, Email: reg.Email, Role: "student"}, reg.Password)
	sendJSON(w, http.StatusCreated, types.RegisterResponse{Message: "User registered successfully", UserID: id})
}

func (p *Platform) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.refreshCalls++
	fail := p.failRefresh
	p.mu.Unlock()

	if fail {
		sendError(w, "Refresh token has expired", http.StatusUnauthorized)
		return
	}

	userID, err := p.tokens.verify(bearer(r), tokenRefresh)
	if err != nil {
		sendError(w, "Refresh token has expired", http.StatusUnauthorized)
		return
	}
	access, err := p.tokens.issue(userID, tokenAccess)
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, types.RefreshResponse{AccessToken: access})
}

func (p *Platform) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update types.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[userIDFrom(r)]
	if !ok {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	if acc.password != update.CurrentPassword {
		sendError(w, "Current password is incorrect", http.StatusBadRequest)
		return
	}
	if update.NewName != nil {
		acc.user.Name = strings.TrimSpace(*update.NewName)
	}
	if update.NewPassword != nil {
		acc.password = *update.NewPassword
	}

	user := acc.user
	sendJSON(w, http.StatusOK, types.ProfileUpdateResponse{Message: "Profile updated", User: &user})
}

func (p *Platform) handleTasks(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	tasks := p.summaries(nil)
	p.mu.Unlock()

	if len(tasks) == 0 {
		sendError(w, "No tasks found", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, tasks)
}

func (p *Platform) handleFilterTasks(w http.ResponseWriter, r *http.Request) {
	var themeID int64
	if raw := r.URL.Query().Get("theme_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			sendError(w, "Invalid theme_id", http.StatusBadRequest)
			return
		}
		themeID = v
	}
	difficulty := types.Difficulty(r.URL.Query().Get("difficulty"))

	p.mu.Lock()
	tasks := p.summaries(func(rec *taskRecord) bool {
		if themeID > 0 && rec.themeID != themeID {
			return false
		}
		return difficulty == "" || rec.task.Difficulty == difficulty
	})
	p.mu.Unlock()

	sendJSON(w, http.StatusOK, tasks)
}

func (p *Platform) handleTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	rec, ok := p.tasks[id]
	p.mu.Unlock()
	if !ok {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, rec.task)
}

func (p *Platform) handleThemes(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	themes := append([]types.Theme(nil), p.themes...)
	p.mu.Unlock()
	sendJSON(w, http.StatusOK, themes)
}

func (p *Platform) handleTheory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid theme id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	theory, ok := p.theory[id]
	p.mu.Unlock()
	if !ok {
		sendError(w, "Theory not found", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, theory)
}

func (p *Platform) handleSolved(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		sendError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	solved := append([]int64{}, p.solved[id]...)
	p.mu.Unlock()
	sendJSON(w, http.StatusOK, types.SolvedTasks{TaskIDs: solved})
}

func (p *Platform) handleMarkSolved(w http.ResponseWriter, r *http.Request) {
	var req types.MarkSolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.solved[req.UserID] = append(p.solved[req.UserID], req.TaskID)
	p.mu.Unlock()
	sendJSON(w, http.StatusOK, map[string]string{"msg": "Task marked as solved"})
}

func (p *Platform) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	userID := userIDFrom(r)

	p.mu.Lock()
	if p.submitFailure != "" {
		msg := p.submitFailure
		p.mu.Unlock()
		sendError(w, msg, http.StatusInternalServerError)
		return
	}
	if _, ok := p.tasks[req.TaskID]; !ok {
		p.mu.Unlock()
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}

	p.nextSubmit++
	sub := Submission{ID: p.nextSubmit, UserID: userID, SubmissionRequest: req}
	p.submitted = append(p.submitted, sub)
	// newest first
	p.submissions[userID] = append([]types.SubmissionRecord{{
		ID:       sub.ID,
		Date:     time.Now().UTC().Format("2006-01-02T15:04:05"),
		Code:     req.Code,
		Language: req.Language,
		Status:   types.StatusPending,
	}}, p.submissions[userID]...)
	judge, delay := p.judge, p.judgeDelay
	p.mu.Unlock()

	sendJSON(w, http.StatusAccepted, types.SubmissionAck{Message: "Submission accepted", SubmissionID: sub.ID, UserID: userID})

	if judge != nil {
		go func() {
			time.Sleep(delay)
			if result := judge(sub); result != nil {
				p.settle(sub, result)
			}
		}()
	}
}

// Settle pushes result for a pending submission as the judge would.
func (p *Platform) Settle(sub Submission, result types.SubmissionResult) {
	p.settle(sub, &result)
}

func (p *Platform) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		sendError(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	taskID, err := pathID(r, "taskID")
	if err != nil {
		sendError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	var records []types.SubmissionRecord
	for _, s := range p.submitted {
		if s.UserID != userID || s.TaskID != taskID {
			continue
		}
		for _, rec := range p.submissions[userID] {
			if rec.ID == s.ID {
				records = append(records, rec)
			}
		}
	}
	p.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	if records == nil {
		records = []types.SubmissionRecord{}
	}
	sendJSON(w, http.StatusOK, records)
}

func (p *Platform) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		sendError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	stats := p.statistics(id)
	p.mu.Unlock()
	sendJSON(w, http.StatusOK, types.Profile{UserID: id, Statistics: stats})
}

func (p *Platform) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		sendError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	acc, ok := p.accounts[id]
	p.mu.Unlock()
	if !ok {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, types.UserInfo{ID: acc.user.ID, Name: acc.user.Name, Login: acc.user.Login})
}

func commentTarget(w http.ResponseWriter, r *http.Request, target string) (commentKey, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid id", http.StatusBadRequest)
		return commentKey{}, false
	}
	return commentKey{target: target, id: id}, true
}

func (p *Platform) handleComments(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := commentTarget(w, r, target)
		if !ok {
			return
		}

		p.mu.Lock()
		comments := append([]types.Comment{}, p.comments[key]...)
		p.mu.Unlock()
		sendJSON(w, http.StatusOK, comments)
	}
}

func (p *Platform) handleAddComment(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := commentTarget(w, r, target)
		if !ok {
			return
		}
		var body types.NewComment
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Description) == "" {
			sendError(w, "Comment text is required", http.StatusBadRequest)
			return
		}

		p.mu.Lock()
		id := p.nextComment
		p.nextComment++
		comment := types.Comment{
			ID:          id,
			UserID:      userIDFrom(r),
			Date:        time.Now().UTC().Format("2006-01-02T15:04:05"),
			Description: body.Description,
		}
		p.comments[key] = append([]types.Comment{comment}, p.comments[key]...)
		p.mu.Unlock()

		sendJSON(w, http.StatusCreated, types.CommentCreated{Message: "Comment added", CommentID: id})
	}
}

func (p *Platform) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid comment id", http.StatusBadRequest)
		return
	}
	userID := userIDFrom(r)

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, comments := range p.comments {
		for i, c := range comments {
			if c.ID != id {
				continue
			}
			if c.UserID != userID {
				sendError(w, "You can only delete your own comments", http.StatusForbidden)
				return
			}
			p.comments[key] = append(comments[:i:i], comments[i+1:]...)
			sendJSON(w, http.StatusOK, map[string]string{"msg": "Comment deleted"})
			return
		}
	}
	sendError(w, "Comment not found", http.StatusNotFound)
}

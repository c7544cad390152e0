package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tgcircle/tgcircle/internal/models"
	"github.com/tgcircle/tgcircle/internal/service"
)

// defaultEventListLimit bounds admin event listings when no limit is given.
const defaultEventListLimit = 50

// AdminHandler exposes the reporting and moderation operations over the
// metrics store: daily stats, user listings, ban management and backups.
type AdminHandler struct {
	metrics *service.MetricsService
	backups *service.BackupService
	token   string
}

// NewAdminHandler creates a new admin handler. The token guards every
// operation; an empty token disables the whole admin API.
func NewAdminHandler(metrics *service.MetricsService, backups *service.BackupService, token string) *AdminHandler {
	return &AdminHandler{
		metrics: metrics,
		backups: backups,
		token:   token,
	}
}

// authorize validates the admin token from the request header.
func (h *AdminHandler) authorize(token string) error {
	if h.token == "" {
		return huma.Error403Forbidden("admin API is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		return huma.Error401Unauthorized("invalid admin token")
	}
	return nil
}

// Register registers the admin routes with the API.
func (h *AdminHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStats",
		Method:      "GET",
		Path:        "/api/v1/admin/stats",
		Summary:     "Daily statistics",
		Description: "Returns today's user and conversion counters",
		Tags:        []string{"Admin"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "listUsersToday",
		Method:      "GET",
		Path:        "/api/v1/admin/users/today",
		Summary:     "Users seen today",
		Description: "Returns users active since local midnight",
		Tags:        []string{"Admin"},
	}, h.ListUsersToday)

	huma.Register(api, huma.Operation{
		OperationID: "listVideosToday",
		Method:      "GET",
		Path:        "/api/v1/admin/videos/today",
		Summary:     "Conversions today",
		Description: "Returns today's conversion lifecycle events, newest first",
		Tags:        []string{"Admin"},
	}, h.ListVideosToday)

	huma.Register(api, huma.Operation{
		OperationID: "listErrorsToday",
		Method:      "GET",
		Path:        "/api/v1/admin/errors/today",
		Summary:     "Errors today",
		Description: "Returns today's failed and rejected conversions, newest first",
		Tags:        []string{"Admin"},
	}, h.ListErrorsToday)

	huma.Register(api, huma.Operation{
		OperationID: "listBannedUsers",
		Method:      "GET",
		Path:        "/api/v1/admin/banned",
		Summary:     "Banned users",
		Description: "Returns all banned users",
		Tags:        []string{"Admin"},
	}, h.ListBanned)

	huma.Register(api, huma.Operation{
		OperationID: "getUser",
		Method:      "GET",
		Path:        "/api/v1/admin/users/{id}",
		Summary:     "User card",
		Description: "Returns a user with their lifetime conversion counts",
		Tags:        []string{"Admin"},
	}, h.GetUser)

	huma.Register(api, huma.Operation{
		OperationID: "banUser",
		Method:      "POST",
		Path:        "/api/v1/admin/users/{id}/ban",
		Summary:     "Ban user",
		Description: "Blocks a user from submitting videos",
		Tags:        []string{"Admin"},
	}, h.BanUser)

	huma.Register(api, huma.Operation{
		OperationID: "unbanUser",
		Method:      "POST",
		Path:        "/api/v1/admin/users/{id}/unban",
		Summary:     "Unban user",
		Description: "Restores a user's access",
		Tags:        []string{"Admin"},
	}, h.UnbanUser)

	huma.Register(api, huma.Operation{
		OperationID: "createBackup",
		Method:      "POST",
		Path:        "/api/v1/admin/backups",
		Summary:     "Create backup",
		Description: "Creates an xz-compressed snapshot of the metrics store",
		Tags:        []string{"Admin"},
	}, h.CreateBackup)

	huma.Register(api, huma.Operation{
		OperationID: "listBackups",
		Method:      "GET",
		Path:        "/api/v1/admin/backups",
		Summary:     "List backups",
		Description: "Returns existing backups, newest first",
		Tags:        []string{"Admin"},
	}, h.ListBackups)
}

// authedInput carries the admin token header.
type authedInput struct {
	Token string `header:"X-Admin-Token" doc:"Admin API token"`
}

// GetStatsInput is the input for the daily stats endpoint.
type GetStatsInput struct {
	authedInput
}

// GetStatsOutput is the output for the daily stats endpoint.
type GetStatsOutput struct {
	Body service.DailyStats
}

// GetStats returns today's counters.
func (h *AdminHandler) GetStats(ctx context.Context, input *GetStatsInput) (*GetStatsOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	stats, err := h.metrics.StatsToday(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("querying stats", err)
	}
	return &GetStatsOutput{Body: *stats}, nil
}

// ListUsersInput is the input for user listing endpoints.
type ListUsersInput struct {
	authedInput
}

// ListUsersOutput is the output for user listing endpoints.
type ListUsersOutput struct {
	Body struct {
		Users []UserResponse `json:"users"`
		Total int            `json:"total"`
	}
}

// ListUsersToday returns users active since local midnight.
func (h *AdminHandler) ListUsersToday(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	users, err := h.metrics.UsersToday(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("querying users", err)
	}
	return userListOutput(users), nil
}

// ListBanned returns all banned users.
func (h *AdminHandler) ListBanned(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	users, err := h.metrics.BannedUsers(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("querying banned users", err)
	}
	return userListOutput(users), nil
}

// ListEventsInput is the input for event listing endpoints.
type ListEventsInput struct {
	authedInput
	Limit int `query:"limit" minimum:"1" maximum:"500" doc:"Maximum rows to return"`
}

// ListEventsOutput is the output for event listing endpoints.
type ListEventsOutput struct {
	Body struct {
		Events []EventResponse `json:"events"`
		Total  int             `json:"total"`
	}
}

// ListVideosToday returns today's conversion events.
func (h *AdminHandler) ListVideosToday(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	events, err := h.metrics.VideosToday(ctx, listLimit(input.Limit))
	if err != nil {
		return nil, huma.Error500InternalServerError("querying events", err)
	}
	return eventListOutput(events), nil
}

// ListErrorsToday returns today's failed and rejected conversions.
func (h *AdminHandler) ListErrorsToday(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	events, err := h.metrics.ErrorsToday(ctx, listLimit(input.Limit))
	if err != nil {
		return nil, huma.Error500InternalServerError("querying events", err)
	}
	return eventListOutput(events), nil
}

// GetUserInput is the input for the user card endpoint.
type GetUserInput struct {
	authedInput
	ID int64 `path:"id" doc:"Platform user ID"`
}

// GetUserOutput is the output for the user card endpoint.
type GetUserOutput struct {
	Body struct {
		User         UserResponse `json:"user"`
		SuccessCount int64        `json:"success_count"`
		ErrorCount   int64        `json:"error_count"`
	}
}

// GetUser returns a user card.
func (h *AdminHandler) GetUser(ctx context.Context, input *GetUserInput) (*GetUserOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	card, err := h.metrics.GetUserCard(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("querying user", err)
	}
	if card == nil {
		return nil, huma.Error404NotFound("user not found")
	}

	out := &GetUserOutput{}
	out.Body.User = toUserResponse(card.User)
	out.Body.SuccessCount = card.SuccessCount
	out.Body.ErrorCount = card.ErrorCount
	return out, nil
}

// SetBanInput is the input for ban and unban endpoints.
type SetBanInput struct {
	authedInput
	ID int64 `path:"id" doc:"Platform user ID"`
}

// SetBanOutput is the output for ban and unban endpoints.
type SetBanOutput struct {
	Body struct {
		UserID   int64 `json:"user_id"`
		IsBanned bool  `json:"is_banned"`
	}
}

// BanUser blocks a user from submitting videos.
func (h *AdminHandler) BanUser(ctx context.Context, input *SetBanInput) (*SetBanOutput, error) {
	return h.setBanned(ctx, input, true)
}

// UnbanUser restores a user's access.
func (h *AdminHandler) UnbanUser(ctx context.Context, input *SetBanInput) (*SetBanOutput, error) {
	return h.setBanned(ctx, input, false)
}

func (h *AdminHandler) setBanned(ctx context.Context, input *SetBanInput, banned bool) (*SetBanOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}

	found, err := h.metrics.SetBanned(ctx, input.ID, banned)
	if err != nil {
		return nil, huma.Error500InternalServerError("updating ban state", err)
	}
	if !found {
		return nil, huma.Error404NotFound("user not found")
	}

	out := &SetBanOutput{}
	out.Body.UserID = input.ID
	out.Body.IsBanned = banned
	return out, nil
}

// CreateBackupInput is the input for the backup creation endpoint.
type CreateBackupInput struct {
	authedInput
}

// CreateBackupOutput is the output for the backup creation endpoint.
type CreateBackupOutput struct {
	Body struct {
		Path string `json:"path"`
	}
}

// CreateBackup snapshots the metrics store.
func (h *AdminHandler) CreateBackup(ctx context.Context, input *CreateBackupInput) (*CreateBackupOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}
	if h.backups == nil {
		return nil, huma.Error501NotImplemented("backups are not configured")
	}

	path, err := h.backups.CreateBackup(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("creating backup", err)
	}

	out := &CreateBackupOutput{}
	out.Body.Path = path
	return out, nil
}

// ListBackupsInput is the input for the backup listing endpoint.
type ListBackupsInput struct {
	authedInput
}

// ListBackupsOutput is the output for the backup listing endpoint.
type ListBackupsOutput struct {
	Body struct {
		Backups []string `json:"backups"`
		Total   int      `json:"total"`
	}
}

// ListBackups returns existing backups, newest first.
func (h *AdminHandler) ListBackups(ctx context.Context, input *ListBackupsInput) (*ListBackupsOutput, error) {
	if err := h.authorize(input.Token); err != nil {
		return nil, err
	}
	if h.backups == nil {
		return nil, huma.Error501NotImplemented("backups are not configured")
	}

	backups, err := h.backups.ListBackups()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing backups", err)
	}

	out := &ListBackupsOutput{}
	out.Body.Backups = backups
	out.Body.Total = len(backups)
	return out, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultEventListLimit
	}
	return limit
}

func userListOutput(users []*models.User) *ListUsersOutput {
	out := &ListUsersOutput{}
	out.Body.Users = make([]UserResponse, 0, len(users))
	for _, u := range users {
		out.Body.Users = append(out.Body.Users, toUserResponse(u))
	}
	out.Body.Total = len(out.Body.Users)
	return out
}

func eventListOutput(events []*models.Event) *ListEventsOutput {
	out := &ListEventsOutput{}
	out.Body.Events = make([]EventResponse, 0, len(events))
	for _, e := range events {
		out.Body.Events = append(out.Body.Events, EventResponse{
			ID:            e.ID.String(),
			TS:            e.TS,
			UserID:        e.UserID,
			Event:         e.Event,
			MessageID:     e.MessageID,
			Effect:        e.Effect,
			VideoDuration: e.VideoDuration,
			VideoFileSize: e.VideoFileSize,
			Error:         e.Error,
		})
	}
	out.Body.Total = len(out.Body.Events)
	return out
}

func toUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		UserID:      u.UserID,
		DisplayName: u.DisplayName(),
		FirstSeenTS: u.FirstSeenTS,
		LastSeenTS:  u.LastSeenTS,
		IsBanned:    u.IsBanned,
	}
	if u.Username != nil {
		resp.Username = *u.Username
	}
	if u.FullName != nil {
		resp.FullName = *u.FullName
	}
	return resp
}

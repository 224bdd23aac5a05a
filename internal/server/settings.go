package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"devtracker/internal/app"
	"devtracker/internal/config"
)

func registerSettings(api huma.API, a *app.App) {
	tags := []string{"settings"}

	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Current settings with secrets masked",
		Tags:        tags,
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[SettingsResponse], error) {
		return &bodyOutput[SettingsResponse]{Body: settingsResponse(a.Settings.Get())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Update assistant settings",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UpdateSettingsRequest
	}) (*bodyOutput[SettingsResponse], error) {
		next, err := a.Settings.Update(input.Body.apply)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &bodyOutput[SettingsResponse]{Body: settingsResponse(next)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "Models offered by the configured provider",
		Tags:        tags,
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[ModelsResponse], error) {
		if !a.Settings.Get().AI.HasCredential() {
			return nil, handleError(config.ErrNoCredential)
		}
		models, err := a.LLM.Models(ctx)
		resp := ModelsResponse{Items: models}
		if err != nil {
			a.Logger.Debug("serving fallback models", zap.Error(err))
			resp.Fallback = true
		}
		return &bodyOutput[ModelsResponse]{Body: resp}, nil
	})
}

func settingsResponse(s config.Settings) SettingsResponse {
	return SettingsResponse{Settings: s.Masked(), Configured: s.AI.HasCredential()}
}

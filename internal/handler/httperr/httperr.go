// Package httperr maps service errors onto HTTP status codes.
package httperr

import (
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/storage"
	"github.com/zhouzirui/mad-arena/backend/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, debateService.ErrRoundInProgress),
		errors.Is(err, debateService.ErrDebateFinished):
		return http.StatusConflict
	case errors.Is(err, debateService.ErrSpeakerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, debateService.ErrTopicRequired),
		errors.Is(err, debate.ErrNoDebaters),
		errors.Is(err, debate.ErrJudgeRequired),
		errors.Is(err, debate.ErrDuplicateAgent),
		errors.Is(err, debate.ErrUnknownAgent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error. Internal errors are logged and not echoed.
func Respond(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] internal error: %v", err)
		utils.RespondError(w, status, "internal server error")
		return
	}
	utils.RespondError(w, status, err.Error())
}

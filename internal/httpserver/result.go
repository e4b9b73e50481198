package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type HttpHandler func(request *http.Request, params httprouter.Params) (HttpResult, error)

type HttpResult interface {
	Render(w http.ResponseWriter) error
}

type renderFunc func(w http.ResponseWriter) error

func (f renderFunc) Render(w http.ResponseWriter) error {
	return f(w)
}

func JsonResult(status int, object any) HttpResult {
	return renderFunc(func(w http.ResponseWriter) error {
		data, err := json.Marshal(object)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, err = w.Write(data)
		return err
	})
}

// ChallengeResult asks the client for basic credentials.
func ChallengeResult(realm string) HttpResult {
	return renderFunc(func(w http.ResponseWriter) error {
		w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
		w.WriteHeader(http.StatusUnauthorized)
		return nil
	})
}

// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

const jsonContentType = "application/json; charset=UTF-8"

func (s *Server) check(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	if s.repo != nil {
		if err := s.repo.Ping(); err != nil {
			return http.StatusInternalServerError, err
		}
	}

	_, err := w.Write([]byte("STILL-ALIVE"))
	return http.StatusOK, err
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	w.Header().Set("Content-Type", jsonContentType)

	query := r.URL.Query()

	var val interface{}
	if _, flatten := query["flatten"]; flatten {
		val = s.tracker.Stats.Flattened()
	} else {
		val = s.tracker.Stats.Snapshot()
	}

	var err error
	if _, pretty := query["pretty"]; pretty {
		var buf []byte
		buf, err = json.MarshalIndent(val, "", "  ")
		if err == nil {
			_, err = w.Write(buf)
		}
	} else {
		err = json.NewEncoder(w).Encode(val)
	}

	return http.StatusOK, err
}

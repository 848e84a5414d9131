package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "pdfdesk_flash"

// flash is a one-shot message shown on the next rendered page.
type flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// addFlash appends a message to the pending flashes of this response.
func addFlash(w http.ResponseWriter, r *http.Request, category, msg string) {
	msgs := readFlashes(r)
	msgs = append(msgs, flash{Category: category, Message: msg})
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	c := &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, c)
	r.AddCookie(c)
}

// popFlashes returns pending messages and clears the cookie.
func popFlashes(w http.ResponseWriter, r *http.Request) []flash {
	msgs := readFlashes(r)
	if len(msgs) > 0 {
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	}
	return msgs
}

func readFlashes(r *http.Request) []flash {
	var last *http.Cookie
	for _, c := range r.Cookies() {
		if c.Name == flashCookie {
			last = c
		}
	}
	if last == nil || last.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(last.Value)
	if err != nil {
		return nil
	}
	var msgs []flash
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}

package web

import "strings"

// NavLink is a static navigation bar entry
type NavLink struct {
	Label  string
	Path   string
	Brand  bool // rendered as the logo link on the left
	Button bool // rendered as a primary button
}

// NavLinks are the navigation bar entries shown on every page
var NavLinks = []NavLink{
	{Label: "AI ANALYZER", Path: "/", Brand: true},
	{Label: "Jobs", Path: "/jobs"},
	{Label: "Upload Resume", Path: "/upload", Button: true},
}

// navItem is a NavLink resolved for the current request
type navItem struct {
	NavLink
	URL    string
	Active bool
}

// navItems resolves nav links against base URL and marks the one matching current path
func (s *Server) navItems(current string) []navItem {
	res := make([]navItem, 0, len(NavLinks))
	for _, l := range NavLinks {
		active := current == l.Path
		if !active && l.Path != "/" {
			active = strings.HasPrefix(current, l.Path+"/")
		}
		res = append(res, navItem{NavLink: l, URL: s.url(l.Path), Active: active})
	}
	return res
}

// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package middleware

import (
	"net"
	"net/http"

	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/metrics"
)

// CIDRAllowList rejects requests whose source address is outside the
// configured networks. Rejections answer 403 and never reach a handler,
// so a denied client cannot generate any bus traffic. Runs after RealIP
// so proxied requests are judged by their original address.
func CIDRAllowList(cidrs []string) (func(http.Handler) http.Handler, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		nets = append(nets, ipNet)
	}

	log := logging.With().Str("component", "remote").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := sourceIP(r)
			if ip == nil || !allowed(nets, ip) {
				metrics.HTTPRequestsDenied.Inc()
				log.Warn().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("request outside allow-list")
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func sourceIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP middleware rewrites RemoteAddr without a port.
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

func allowed(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

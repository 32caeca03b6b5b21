package api

import (
	"net/url"
	"strconv"
	"strings"

	service "github.com/okian/skyrank/internal/app"
)

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name, err: err}
	}
	return v, nil
}

// optionalInt returns nil when the parameter is absent.
func optionalInt(q url.Values, name string) (*int, error) {
	if strings.TrimSpace(q.Get(name)) == "" {
		return nil, nil
	}
	v, err := intParam(q, name, 0)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &paramError{name: name, err: err}
	}
	return v, nil
}

// listParam splits a comma separated parameter, dropping empty items.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func sliceQuery(q url.Values) (service.SliceQuery, error) {
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		return service.SliceQuery{}, err
	}
	limit, err := intParam(q, "limit", defaultLimit)
	if err != nil {
		return service.SliceQuery{}, err
	}
	return service.SliceQuery{
		Offset:   offset,
		Limit:    limit,
		Interval: q.Get("interval"),
		GameMode: q.Get("mode"),
		Removed:  q.Get("removed"),
	}, nil
}

func rankQuery(q url.Values) (service.RankQuery, error) {
	rq := service.RankQuery{
		PlayerUUID:  q.Get("player"),
		ProfileUUID: q.Get("profile"),
		Interval:    q.Get("interval"),
		GameMode:    q.Get("mode"),
		Removed:     q.Get("removed"),
	}
	var err error
	if rq.Upcoming, err = optionalInt(q, "upcoming"); err != nil {
		return rq, err
	}
	if rq.Previous, err = optionalInt(q, "previous"); err != nil {
		return rq, err
	}
	if rq.AtRank, err = optionalInt(q, "atRank"); err != nil {
		return rq, err
	}
	if rq.IncludeUpcoming, err = boolParam(q, "includeUpcoming"); err != nil {
		return rq, err
	}
	return rq, nil
}

package cachetier

import (
	"net/http"
	"strings"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/goccy/go-json"
)

// Built-in data served by the API tier when nothing was ever cached, so the
// first offline start still shows a city list.
var (
	fallbackCities = []model.CityInfo{
		{ID: "rome", Name: "Rome", Country: "Italy", Lat: 41.9028, Lng: 12.4964, Zoom: 14},
		{ID: "paris", Name: "Paris", Country: "France", Lat: 48.8566, Lng: 2.3522, Zoom: 14},
		{ID: "london", Name: "London", Country: "United Kingdom", Lat: 51.5074, Lng: -0.1278, Zoom: 14},
	}

	fallbackLandmarks = []model.Landmark{
		{ID: "colosseum", CityID: "rome", Name: "Colosseum", Lat: 41.8902, Lng: 12.4922, Radius: 100, Category: "monument"},
		{ID: "eiffel-tower", CityID: "paris", Name: "Eiffel Tower", Lat: 48.8584, Lng: 2.2945, Radius: 100, Category: "monument"},
		{ID: "tower-of-london", CityID: "london", Name: "Tower of London", Lat: 51.5081, Lng: -0.0759, Radius: 100, Category: "castle"},
	}
)

// fallbackResponse returns built-in data for well-known list endpoints, or nil.
func fallbackResponse(req *http.Request) *http.Response {
	p := strings.TrimSuffix(req.URL.Path, "/")
	switch {
	case strings.HasSuffix(p, "/cities"):
		return jsonResponse(req, http.StatusOK, fallbackCities)

	case strings.Contains(p, "/cities/"):
		id := p[strings.LastIndex(p, "/")+1:]
		for _, c := range fallbackCities {
			if c.ID == id {
				return jsonResponse(req, http.StatusOK, c)
			}
		}

	case strings.HasSuffix(p, "/landmarks"):
		cityID := req.URL.Query().Get("cityId")
		landmarks := make([]model.Landmark, 0, len(fallbackLandmarks))
		for _, l := range fallbackLandmarks {
			if cityID == "" || l.CityID == cityID {
				landmarks = append(landmarks, l)
			}
		}
		return jsonResponse(req, http.StatusOK, landmarks)

	case strings.HasSuffix(p, "/offline-package"):
		listing := make([]model.PackageListing, 0, len(fallbackCities))
		for _, c := range fallbackCities {
			count := 0
			for _, l := range fallbackLandmarks {
				if l.CityID == c.ID {
					count++
				}
			}
			listing = append(listing, model.PackageListing{ID: c.ID, Name: c.Name, Country: c.Country, LandmarkCount: count})
		}
		return jsonResponse(req, http.StatusOK, listing)
	}
	return nil
}

func jsonResponse(req *http.Request, code int, v interface{}) *http.Response {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(`{"error":"offline"}`)
		code = http.StatusServiceUnavailable
	}
	e := &Entry{StatusCode: code, Header: http.Header{"Content-Type": {"application/json"}}, Body: body}
	return e.response(req)
}

package http

// Capability says which checks a route requires.
type Capability int

const (
	// Public routes skip authentication entirely.
	Public Capability = iota
	// Session routes need only a valid bearer session.
	Session
	// Protected routes run the full request pipeline.
	Protected
)

func (c Capability) String() string {
	switch c {
	case Public:
		return "public"
	case Session:
		return "session"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// Route identities.
const (
	RouteDeviceLogin = "device-login"
	RouteConfig      = "config"
	RouteHealth      = "health"
	RouteXReqIssue   = "xreq-issue"
	RouteBalance     = "balance"
	RouteProfile     = "profile"
	RouteEcho        = "echo"
)

// Route is one entry in the capability table.
type Route struct {
	ID          string
	Method      string
	Path        string
	Capability  Capability
	RateLimited bool
}

// Routes is the authoritative route capability table.
var Routes = []Route{
	{ID: RouteDeviceLogin, Method: "POST", Path: "/api/v1/auth/device-login", Capability: Public, RateLimited: true},
	{ID: RouteConfig, Method: "GET", Path: "/api/v1/config", Capability: Public},
	{ID: RouteHealth, Method: "GET", Path: "/healthz", Capability: Public},
	{ID: RouteXReqIssue, Method: "POST", Path: "/api/v1/xreq", Capability: Session, RateLimited: true},
	{ID: RouteBalance, Method: "GET", Path: "/api/v1/user/balance", Capability: Protected},
	{ID: RouteProfile, Method: "GET", Path: "/api/v1/user/profile", Capability: Protected},
	{ID: RouteEcho, Method: "POST", Path: "/api/v1/secure/echo", Capability: Protected},
}

// RouteByID looks up a route in the capability table.
func RouteByID(id string) (Route, bool) {
	for _, r := range Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

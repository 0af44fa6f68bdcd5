package kvstore

// Well-known profile keys.
const (
	KeySnapshot = "ambulance_app_data"

	KeyAdminLoggedIn = "userLoggedIn"
	KeyAdminEmail    = "userEmail"
	KeyAdminRole     = "userRole"

	KeyPortalLoggedIn = "isLoggedIn"
	KeyPortalEmail    = "currentUserEmail"
	KeyPortalRole     = "currentUserRole"

	KeyLanguage = "appLanguage"
	KeyTheme    = "theme"
	KeyUsers    = "users"
)

package core

// View is the screen the user last looked at.
type View string

const (
	ViewHome View = "home"
	ViewMain View = "main"

	// ViewKey is the storage key holding the last shown view.
	ViewKey = "verisafe-view"
)

// ParseView maps a stored value to a View. Anything unknown falls back to home.
func ParseView(s string) View {
	switch View(s) {
	case ViewMain:
		return ViewMain
	default:
		return ViewHome
	}
}

func (v View) String() string {
	return string(v)
}

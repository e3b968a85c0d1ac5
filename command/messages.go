package command

import (
	"fmt"
	"strings"
	"time"
)

const (
	repoText    = "You can find the source code for this VS Code extension at https://github.com/build-with-me/vscode-twitch-themer . Feel free to fork & contribute."
	resumedText = "Twitch Themer has resumed listening for requests."
	listPrefix  = "Available themes are: "
)

func helpText(w *Words) string {
	return fmt.Sprintf("Available !theme commands are: %[1]s, %[1]s %[2]s, %[1]s %[3]s, %[4]s, and %[5]s. "+
		"You can also use !theme <theme name> to choose a specific theme. "+
		"Or install a theme using !theme %[6]s <id of the theme>",
		w.Random, w.Dark, w.Light, w.Current, w.Repo, w.Install)
}

func pausedText(user string) string {
	return fmt.Sprintf("@%s, theme changes are paused. Please try again in a few minutes.", user)
}

func currentText(label, source string) string {
	return fmt.Sprintf("The current theme is %s. You can find it on the VS Code Marketplace at https://marketplace.visualstudio.com/items?itemName=%s", label, source)
}

func invalidText(user, name string) string {
	return fmt.Sprintf("%s, %s is not a valid theme name or isn't installed.  You can use !theme to get a list of available themes.", user, name)
}

func onPausedText(user, label string, hold time.Duration) string {
	m := int(hold.Round(time.Minute) / time.Minute)
	s := "s"
	if m == 1 {
		s = ""
	}
	return fmt.Sprintf("@%s has redeemed pausing the theme on %s for %d minute%s.", user, label, m, s)
}

func installedText(user string, labels []string) string {
	if len(labels) > 1 {
		return fmt.Sprintf("@%s, the themes '%s' were installed successfully.", user, strings.Join(labels, ", "))
	}
	return fmt.Sprintf("@%s, the theme '%s' was installed successfully.", user, strings.Join(labels, ", "))
}

func existsText(user, id string, labels []string) string {
	return fmt.Sprintf("@%s, '%s' is already installed. To switch to it, send: !theme %s", user, id, strings.Join(labels, " -or- !theme "))
}

package failing

import "errors"

func Run() (string, error) {
	return "", errors.New("boom")
}

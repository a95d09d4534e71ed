package panicking

func Run() {
	panic("kaboom")
}

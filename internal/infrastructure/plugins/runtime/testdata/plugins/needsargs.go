package needsargs

func Run(name string) string {
	return "hello " + name
}

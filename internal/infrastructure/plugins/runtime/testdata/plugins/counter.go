package counter

var calls int

func Run() int {
	calls++
	return calls
}

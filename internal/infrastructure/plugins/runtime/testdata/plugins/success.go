package success

func Run() map[string]string {
	return map[string]string{"status": "success"}
}

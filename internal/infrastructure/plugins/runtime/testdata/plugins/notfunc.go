package notfunc

var Run = "not callable"

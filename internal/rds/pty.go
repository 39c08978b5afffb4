package rds

// ProgramTypeName returns the display name of a PTY code, RBDS (North
// America) or RDS (Europe) flavour.
func ProgramTypeName(pty int, rbds bool) string {
	if pty < 0 || pty > 31 {
		return "Invalid"
	}
	if rbds {
		return PTYNorthAmerica[pty]
	}
	return PTYEurope[pty]
}

var PTYNorthAmerica = [32]string{
	"No program type",
	"News",
	"Information",
	"Sports",
	"Talk",
	"Rock",
	"Classic Rock",
	"Adult Hits",
	"Soft Rock",
	"Top 40",
	"Country",
	"Oldies",
	"Soft",
	"Nostalgia",
	"Jazz",
	"Classical",
	"Rhythm and Blues",
	"Soft Rhythm and Blues",
	"Language",
	"Religious Music",
	"Religious Talk",
	"Personality",
	"Public",
	"College",
	"Unassigned 24",
	"Unassigned 25",
	"Unassigned 26",
	"Unassigned 27",
	"Unassigned 28",
	"Weather",
	"Emergency Test",
	"Emergency",
}

var PTYEurope = [32]string{
	"No program type",
	"News",
	"Current Affairs",
	"Information",
	"Sport",
	"Education",
	"Drama",
	"Culture",
	"Science",
	"Varied",
	"Pop Music",
	"Rock Music",
	"M.O.R. Music",
	"Light Classical",
	"Serious Classical",
	"Other Music",
	"Weather",
	"Finance",
	"Children's Programs",
	"Social Affairs",
	"Religion",
	"Phone-In",
	"Travel",
	"Leisure",
	"Jazz Music",
	"Country Music",
	"National Music",
	"Oldies Music",
	"Folk Music",
	"Documentary",
	"Alarm test",
	"Alarm",
}

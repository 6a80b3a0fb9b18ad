package tracking

// Option catalogs for the form selects. The server validates posted values
// against these; the report groups by them. Values are the exact strings
// written to the grid, so changing one is a schema-adjacent decision.

// QRLocationOptions lists where a visitor may have scanned the QR code.
func QRLocationOptions() []string {
	return []string{
		"Mezzi pubblici",
		"Posto di lavoro",
		"Spazio pubblico",
		"Cassetta della posta",
		"Macchina",
		"Università/Scuola",
		"Bar/Ristorante",
		"Centro commerciale",
		"Centro sportivo",
		"Altro",
	}
}

// AgeRanges lists the bucketed age bands.
func AgeRanges() []string {
	return []string{
		"< 18",
		"18-23",
		"24-29",
		"30-35",
		"36-40",
		"41-50",
		"51-60",
		"61-70",
		"Over 71",
	}
}

// GenderOptions lists the gender choices.
func GenderOptions() []string {
	return []string{"Maschio", "Femmina", "Altro"}
}

// EducationLevels lists the education-level choices.
func EducationLevels() []string {
	return []string{
		"Scuola media",
		"Diploma superiore",
		"Laurea triennale",
		"Laurea magistrale",
		"Master/Dottorato",
	}
}

// Provinces lists the Italian provinces plus "Estero" for abroad.
func Provinces() []string {
	return []string{
		"Estero", "Agrigento", "Alessandria", "Ancona", "Aosta", "Arezzo", "Ascoli Piceno",
		"Asti", "Avellino", "Bari", "Barletta-Andria-Trani", "Belluno", "Benevento",
		"Bergamo", "Biella", "Bologna", "Bolzano", "Brescia", "Brindisi", "Cagliari",
		"Caltanissetta", "Campobasso", "Caserta", "Catania", "Catanzaro", "Chieti",
		"Como", "Cosenza", "Cremona", "Crotone", "Cuneo", "Enna", "Fermo", "Ferrara",
		"Firenze", "Foggia", "Forlì-Cesena", "Frosinone", "Genova", "Gorizia",
		"Grosseto", "Imperia", "Isernia", "L'Aquila", "La Spezia", "Latina", "Lecce",
		"Lecco", "Livorno", "Lodi", "Lucca", "Macerata", "Mantova", "Massa-Carrara",
		"Matera", "Messina", "Milano", "Modena", "Monza e Brianza", "Napoli", "Novara",
		"Nuoro", "Oristano", "Padova", "Palermo", "Parma", "Pavia", "Perugia",
		"Pesaro e Urbino", "Pescara", "Piacenza", "Pisa", "Pistoia", "Pordenone",
		"Potenza", "Prato", "Ragusa", "Ravenna", "Reggio Calabria", "Reggio Emilia",
		"Rieti", "Rimini", "Roma", "Rovigo", "Salerno", "Sassari", "Savona", "Siena",
		"Siracusa", "Sondrio", "Sud Sardegna", "Taranto", "Teramo", "Terni", "Torino",
		"Trapani", "Trento", "Treviso", "Trieste", "Udine", "Varese", "Venezia",
		"Verbano-Cusio-Ossola", "Vercelli", "Verona", "Vibo Valentia", "Vicenza",
		"Viterbo",
	}
}

// ValidOption reports whether value is one of the catalog entries.
func ValidOption(catalog []string, value string) bool {
	for _, v := range catalog {
		if v == value {
			return true
		}
	}
	return false
}

package chat

var coffeeTips = []string{
	"Use freshly roasted beans for the best flavor.",
	"Grind your coffee just before brewing.",
	"Store coffee beans in an airtight container away from light.",
	"Use filtered water for a cleaner taste.",
	"Experiment with different brewing methods (e.g., French press, pour-over).",
	"Keep your coffee equipment clean to avoid bitter flavors.",
	"Try a coarser grind for French press and a finer grind for espresso.",
	"Use a scale to measure coffee and water for consistency.",
	"Brew at the right temperature (195°F to 205°F).",
	"Try adding a pinch of salt to reduce bitterness.",
	"Use a gooseneck kettle for better pour control.",
	"Experiment with different coffee-to-water ratios.",
	"Try cold brew for a smoother, less acidic coffee.",
	"Use a timer to perfect your brewing time.",
	"Try adding spices like cinnamon or cardamom for unique flavors.",
	"Use a burr grinder for a more consistent grind.",
	"Avoid boiling water; it can scorch the coffee.",
	"Try a coffee subscription to explore different beans.",
	"Use a thermal carafe to keep coffee hot without burning.",
	"Experiment with latte art for a fun presentation.",
}

var savingsQuotes = []string{
	"A penny saved is a penny earned. - Benjamin Franklin",
	"Do not save what is left after spending, but spend what is left after saving. - Warren Buffett",
	"Wealth consists not in having great possessions, but in having few wants. - Epictetus",
	"It's not your salary that makes you rich, it's your spending habits. - Charles A. Jaffe",
	"The art is not in making money, but in keeping it. - Proverb",
	"Beware of little expenses; a small leak will sink a great ship. - Benjamin Franklin",
	"The goal isn't more money. The goal is living life on your terms. - Chris Brogan",
	"Financial freedom is available to those who learn about it and work for it. - Robert Kiyosaki",
	"The more you learn, the more you earn. - Warren Buffett",
	"Success is not the key to happiness. Happiness is the key to success. - Albert Schweitzer",
	"The only way to do great work is to love what you do. - Steve Jobs",
	"Don't watch the clock; do what it does. Keep going. - Sam Levenson",
	"The future belongs to those who believe in the beauty of their dreams. - Eleanor Roosevelt",
	"Opportunities don't happen. You create them. - Chris Grosser",
	"The best way to predict the future is to create it. - Peter Drucker",
	"Your time is limited, don't waste it living someone else's life. - Steve Jobs",
	"The harder you work for something, the greater you'll feel when you achieve it. - Unknown",
	"Dream big and dare to fail. - Norman Vaughan",
	"Success usually comes to those who are too busy to be looking for it. - Henry David Thoreau",
	"The stock market is filled with individuals who know the price of everything, but the value of nothing. - Philip Fisher",
}
